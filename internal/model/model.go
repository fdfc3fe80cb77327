package model

import (
	"time"
)

// Visibility controls who may read a workspace.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityOrgRead Visibility = "ORG_READ"
	VisibilityShared  Visibility = "SHARED"
)

// ACLRole is the role granted by an ACL entry.
type ACLRole string

const (
	ACLRoleViewer ACLRole = "VIEWER"
	ACLRoleEditor ACLRole = "EDITOR"
)

// ActorRole is the organization-level role of a caller.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "ADMIN"
	ActorRoleEmployee ActorRole = "EMPLOYEE"
)

// Actor identifies the caller of an operation. It is never persisted.
// A zero Actor (no user, no role) fails every access check.
type Actor struct {
	UserID string
	Role   ActorRole
}

// Workspace is the isolation boundary owning documents and ACL entries.
type Workspace struct {
	ID          string
	Name        string
	Description string
	Visibility  Visibility
	OwnerUserID string
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Archived reports whether the workspace has been soft-archived.
func (w *Workspace) Archived() bool { return w.ArchivedAt != nil }

// ACLEntry grants a user access to a SHARED workspace.
type ACLEntry struct {
	WorkspaceID string
	UserID      string
	Role        ACLRole
	GrantedBy   string
	CreatedAt   time.Time
}

// Document is an ingested file scoped to a workspace.
type Document struct {
	ID               string
	WorkspaceID      string
	Title            string
	Source           string
	Metadata         map[string]any
	Tags             []string
	AllowedRoles     []string
	Status           DocumentStatus
	ErrorMessage     string
	FileName         string
	MimeType         string
	StorageKey       string
	UploadedByUserID string
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// Deleted reports whether the document has been soft-deleted.
func (d *Document) Deleted() bool { return d.DeletedAt != nil }

// Chunk is a bounded fragment of a document with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   map[string]any
}

// RetrievedChunk is a chunk returned from similarity search with its
// cosine similarity to the query attached.
type RetrievedChunk struct {
	Chunk
	Similarity float64
}

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    MessageRole
	Content string
}
