// Package repository persists workspaces, ACL entries and document rows.
package repository

import (
	"context"

	"ragspace/internal/model"
)

// WorkspaceRepository stores workspaces. Names are unique per owner,
// case-insensitively.
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *model.Workspace) error
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
	GetByOwnerAndName(ctx context.Context, ownerUserID, name string) (*model.Workspace, error)

	// ListForOwner returns the owner's live workspaces; archived ones
	// leave default listings.
	ListForOwner(ctx context.Context, ownerUserID string) ([]model.Workspace, error)
	ListByVisibility(ctx context.Context, visibility model.Visibility) ([]model.Workspace, error)
	Update(ctx context.Context, ws *model.Workspace) error

	// Archive soft-archives the workspace. Archiving an already
	// archived workspace is a no-op.
	Archive(ctx context.Context, id string) error
}

// ACLRepository stores the per-workspace access list used when a
// workspace is SHARED.
type ACLRepository interface {
	// ListUserIDs returns granted user ids ordered by grant time, then
	// user id for deterministic output.
	ListUserIDs(ctx context.Context, workspaceID string) ([]string, error)
	ListEntries(ctx context.Context, workspaceID string) ([]model.ACLEntry, error)
	ListWorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error)
	Grant(ctx context.Context, entry model.ACLEntry) error
	Revoke(ctx context.Context, workspaceID, userID string) error

	// ReplaceAll swaps the whole access list in one transaction.
	ReplaceAll(ctx context.Context, workspaceID string, entries []model.ACLEntry) error
}

// DocumentRepository stores document rows. Chunk persistence lives in
// the vector index.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id, workspaceID string) (*model.Document, error)
	List(ctx context.Context, workspaceID string) ([]model.Document, error)

	// SoftDelete marks the document deleted and reports whether a live
	// row was affected.
	SoftDelete(ctx context.Context, id, workspaceID string) (bool, error)

	// SoftDeleteByWorkspace marks every live document in the workspace
	// deleted and returns the number affected. Backs the archive
	// cascade.
	SoftDeleteByWorkspace(ctx context.Context, workspaceID string) (int64, error)

	// HardDelete removes the row entirely. Used to compensate a failed
	// upload before the document was ever visible.
	HardDelete(ctx context.Context, id string) error
}
