package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

// In-memory repositories for tests and single-process runs. They mirror
// the Postgres implementations' semantics, including conflict and
// not-found errors.

type MemoryWorkspaceRepository struct {
	mu         sync.Mutex
	workspaces map[string]*model.Workspace
}

func NewMemoryWorkspaceRepository() *MemoryWorkspaceRepository {
	return &MemoryWorkspaceRepository{workspaces: make(map[string]*model.Workspace)}
}

func (r *MemoryWorkspaceRepository) Create(_ context.Context, ws *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.workspaces {
		if existing.OwnerUserID == ws.OwnerUserID && strings.EqualFold(existing.Name, ws.Name) {
			return apperr.Newf(apperr.KindConflict, "workspace %q already exists for this owner", ws.Name)
		}
	}
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	clone := *ws
	r.workspaces[ws.ID] = &clone
	return nil
}

func (r *MemoryWorkspaceRepository) GetByID(_ context.Context, id string) (*model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "workspace not found").WithResource(id)
	}
	clone := *ws
	return &clone, nil
}

func (r *MemoryWorkspaceRepository) GetByOwnerAndName(_ context.Context, ownerUserID, name string) (*model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ws := range r.workspaces {
		if ws.OwnerUserID == ownerUserID && strings.EqualFold(ws.Name, name) {
			clone := *ws
			return &clone, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "workspace not found").WithResource(name)
}

func (r *MemoryWorkspaceRepository) ListForOwner(_ context.Context, ownerUserID string) ([]model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Workspace
	for _, ws := range r.workspaces {
		if ws.OwnerUserID == ownerUserID && !ws.Archived() {
			out = append(out, *ws)
		}
	}
	sortWorkspaces(out)
	return out, nil
}

func (r *MemoryWorkspaceRepository) ListByVisibility(_ context.Context, visibility model.Visibility) ([]model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Workspace
	for _, ws := range r.workspaces {
		if ws.Visibility == visibility && !ws.Archived() {
			out = append(out, *ws)
		}
	}
	sortWorkspaces(out)
	return out, nil
}

func (r *MemoryWorkspaceRepository) Update(_ context.Context, ws *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.workspaces[ws.ID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "workspace not found").WithResource(ws.ID)
	}
	for _, other := range r.workspaces {
		if other.ID != ws.ID && other.OwnerUserID == existing.OwnerUserID && strings.EqualFold(other.Name, ws.Name) {
			return apperr.Newf(apperr.KindConflict, "workspace %q already exists for this owner", ws.Name)
		}
	}
	existing.Name = ws.Name
	existing.Description = ws.Description
	existing.Visibility = ws.Visibility
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryWorkspaceRepository) Archive(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "workspace not found").WithResource(id)
	}
	if ws.ArchivedAt == nil {
		now := time.Now().UTC()
		ws.ArchivedAt = &now
	}
	ws.UpdatedAt = time.Now().UTC()
	return nil
}

func sortWorkspaces(list []model.Workspace) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

type MemoryACLRepository struct {
	mu      sync.Mutex
	entries map[string][]model.ACLEntry
}

func NewMemoryACLRepository() *MemoryACLRepository {
	return &MemoryACLRepository{entries: make(map[string][]model.ACLEntry)}
}

func (r *MemoryACLRepository) ListUserIDs(_ context.Context, workspaceID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append([]model.ACLEntry(nil), r.entries[workspaceID]...)
	sortEntries(entries)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids, nil
}

func (r *MemoryACLRepository) ListEntries(_ context.Context, workspaceID string) ([]model.ACLEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append([]model.ACLEntry(nil), r.entries[workspaceID]...)
	sortEntries(entries)
	return entries, nil
}

func (r *MemoryACLRepository) ListWorkspaceIDsForUser(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for wsID, entries := range r.entries {
		for _, e := range entries {
			if e.UserID == userID {
				ids = append(ids, wsID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryACLRepository) Grant(_ context.Context, entry model.ACLEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries[entry.WorkspaceID]
	for i, e := range entries {
		if e.UserID == entry.UserID {
			entries[i].Role = entry.Role
			entries[i].GrantedBy = entry.GrantedBy
			return nil
		}
	}
	entry.CreatedAt = time.Now().UTC()
	r.entries[entry.WorkspaceID] = append(entries, entry)
	return nil
}

func (r *MemoryACLRepository) Revoke(_ context.Context, workspaceID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries[workspaceID]
	for i, e := range entries {
		if e.UserID == userID {
			r.entries[workspaceID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryACLRepository) ReplaceAll(_ context.Context, workspaceID string, entries []model.ACLEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Last entry wins for a repeated user id, matching the upsert in
	// the Postgres implementation.
	now := time.Now().UTC()
	index := make(map[string]int, len(entries))
	clean := make([]model.ACLEntry, 0, len(entries))
	for _, e := range entries {
		e.WorkspaceID = workspaceID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if i, ok := index[e.UserID]; ok {
			clean[i] = e
			continue
		}
		index[e.UserID] = len(clean)
		clean = append(clean, e)
	}
	r.entries[workspaceID] = clean
	return nil
}

func sortEntries(entries []model.ACLEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

type MemoryDocumentRepository struct {
	mu        sync.Mutex
	documents map[string]*model.Document

	// FailInserts forces Insert to fail, for exercising upload
	// compensation.
	FailInserts bool
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{documents: make(map[string]*model.Document)}
}

func (r *MemoryDocumentRepository) Insert(_ context.Context, doc *model.Document) error {
	if r.FailInserts {
		return apperr.New(apperr.KindDatabase, "database unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc.CreatedAt = time.Now().UTC()
	clone := *doc
	r.documents[doc.ID] = &clone
	return nil
}

func (r *MemoryDocumentRepository) GetByID(_ context.Context, id, workspaceID string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok || doc.WorkspaceID != workspaceID || doc.Deleted() {
		return nil, apperr.New(apperr.KindNotFound, "document not found").WithResource(id)
	}
	clone := *doc
	return &clone, nil
}

func (r *MemoryDocumentRepository) List(_ context.Context, workspaceID string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Document
	for _, doc := range r.documents {
		if doc.WorkspaceID == workspaceID && !doc.Deleted() {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryDocumentRepository) SoftDelete(_ context.Context, id, workspaceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok || doc.WorkspaceID != workspaceID || doc.Deleted() {
		return false, nil
	}
	now := time.Now().UTC()
	doc.DeletedAt = &now
	return true, nil
}

func (r *MemoryDocumentRepository) SoftDeleteByWorkspace(_ context.Context, workspaceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected int64
	now := time.Now().UTC()
	for _, doc := range r.documents {
		if doc.WorkspaceID == workspaceID && !doc.Deleted() {
			doc.DeletedAt = &now
			affected++
		}
	}
	return affected, nil
}

func (r *MemoryDocumentRepository) HardDelete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.documents, id)
	r.mu.Unlock()
	return nil
}

// SetStatus overwrites a document's status directly. Test helper.
func (r *MemoryDocumentRepository) SetStatus(id string, status model.DocumentStatus, errorMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.documents[id]; ok {
		doc.Status = status
		doc.ErrorMessage = errorMessage
	}
}
