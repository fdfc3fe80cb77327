// Package service implements the use cases exposed over the API:
// workspace management, document upload, and question answering.
package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
	"ragspace/internal/policy"
	"ragspace/internal/repository"
)

const maxWorkspaceNameLen = 100

// WorkspaceService manages workspaces and their access lists.
type WorkspaceService struct {
	workspaces repository.WorkspaceRepository
	acl        repository.ACLRepository
	documents  repository.DocumentRepository
	logger     *zap.Logger
}

func NewWorkspaceService(workspaces repository.WorkspaceRepository, acl repository.ACLRepository,
	documents repository.DocumentRepository, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{workspaces: workspaces, acl: acl, documents: documents, logger: logger}
}

func validVisibility(v model.Visibility) bool {
	switch v {
	case model.VisibilityPrivate, model.VisibilityOrgRead, model.VisibilityShared:
		return true
	}
	return false
}

func (s *WorkspaceService) Create(ctx context.Context, actor model.Actor, name, description string, visibility model.Visibility) (*model.Workspace, error) {
	if actor.UserID == "" {
		return nil, apperr.New(apperr.KindForbidden, "authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "workspace name is required")
	}
	if len(name) > maxWorkspaceNameLen {
		return nil, apperr.Newf(apperr.KindValidation, "workspace name exceeds %d characters", maxWorkspaceNameLen)
	}
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !validVisibility(visibility) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid visibility %q", visibility)
	}

	ws := &model.Workspace{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Visibility:  visibility,
		OwnerUserID: actor.UserID,
	}
	if err := s.workspaces.Create(ctx, ws); err != nil {
		return nil, err
	}
	s.logger.Info("workspace created",
		zap.String("workspace_id", ws.ID),
		zap.String("owner", actor.UserID),
		zap.String("visibility", string(visibility)))
	return ws, nil
}

// AuthorizeRead loads the workspace and checks read access, consulting
// the ACL only when visibility is SHARED.
func (s *WorkspaceService) AuthorizeRead(ctx context.Context, actor model.Actor, workspaceID string) (*model.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	var sharedIDs []string
	if ws.Visibility == model.VisibilityShared {
		sharedIDs, err = s.acl.ListUserIDs(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
	}
	if !policy.CanRead(ws, actor, sharedIDs) {
		return nil, apperr.New(apperr.KindForbidden, "access to workspace denied").WithResource(workspaceID)
	}
	return ws, nil
}

// AuthorizeWrite loads the workspace and checks write access. Archived
// workspaces reject mutation.
func (s *WorkspaceService) AuthorizeWrite(ctx context.Context, actor model.Actor, workspaceID string) (*model.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !policy.CanWrite(ws, actor) {
		return nil, apperr.New(apperr.KindForbidden, "write access to workspace denied").WithResource(workspaceID)
	}
	if ws.Archived() {
		return nil, apperr.New(apperr.KindConflict, "workspace is archived").WithResource(workspaceID)
	}
	return ws, nil
}

func (s *WorkspaceService) Get(ctx context.Context, actor model.Actor, workspaceID string) (*model.Workspace, error) {
	return s.AuthorizeRead(ctx, actor, workspaceID)
}

// List returns the workspaces the actor can reach: owned, org-readable,
// and shared via ACL. Deterministic order, no duplicates.
func (s *WorkspaceService) List(ctx context.Context, actor model.Actor) ([]model.Workspace, error) {
	if actor.UserID == "" {
		return nil, apperr.New(apperr.KindForbidden, "authentication required")
	}

	seen := make(map[string]bool)
	var out []model.Workspace
	add := func(list []model.Workspace) {
		for _, ws := range list {
			if !seen[ws.ID] {
				seen[ws.ID] = true
				out = append(out, ws)
			}
		}
	}

	owned, err := s.workspaces.ListForOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	add(owned)

	orgRead, err := s.workspaces.ListByVisibility(ctx, model.VisibilityOrgRead)
	if err != nil {
		return nil, err
	}
	add(orgRead)

	sharedIDs, err := s.acl.ListWorkspaceIDsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	for _, id := range sharedIDs {
		if seen[id] {
			continue
		}
		ws, err := s.workspaces.GetByID(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		if ws.Visibility == model.VisibilityShared && !ws.Archived() {
			seen[id] = true
			out = append(out, *ws)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *WorkspaceService) Update(ctx context.Context, actor model.Actor, workspaceID, name, description string, visibility model.Visibility) (*model.Workspace, error) {
	ws, err := s.AuthorizeWrite(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		if len(name) > maxWorkspaceNameLen {
			return nil, apperr.Newf(apperr.KindValidation, "workspace name exceeds %d characters", maxWorkspaceNameLen)
		}
		ws.Name = name
	}
	if description != "" {
		ws.Description = description
	}
	if visibility != "" {
		if !validVisibility(visibility) {
			return nil, apperr.Newf(apperr.KindValidation, "invalid visibility %q", visibility)
		}
		ws.Visibility = visibility
	}

	if err := s.workspaces.Update(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Archive soft-archives the workspace and cascades a soft delete to
// its documents, removing them from listings and retrieval. Archiving
// twice succeeds.
func (s *WorkspaceService) Archive(ctx context.Context, actor model.Actor, workspaceID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !policy.CanWrite(ws, actor) {
		return apperr.New(apperr.KindForbidden, "write access to workspace denied").WithResource(workspaceID)
	}
	if err := s.workspaces.Archive(ctx, workspaceID); err != nil {
		return err
	}
	deleted, err := s.documents.SoftDeleteByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	s.logger.Info("workspace archived",
		zap.String("workspace_id", workspaceID),
		zap.String("actor", actor.UserID),
		zap.Int64("documents_deleted", deleted))
	return nil
}

func (s *WorkspaceService) ListACL(ctx context.Context, actor model.Actor, workspaceID string) ([]model.ACLEntry, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageACL(ws, actor) {
		return nil, apperr.New(apperr.KindForbidden, "access list management denied").WithResource(workspaceID)
	}
	return s.acl.ListEntries(ctx, workspaceID)
}

func (s *WorkspaceService) ReplaceACL(ctx context.Context, actor model.Actor, workspaceID string, entries []model.ACLEntry) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !policy.CanManageACL(ws, actor) {
		return apperr.New(apperr.KindForbidden, "access list management denied").WithResource(workspaceID)
	}
	// Deduplicate by user id, last entry winning, so the stored list
	// always round-trips as a set.
	index := make(map[string]int, len(entries))
	deduped := make([]model.ACLEntry, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			return apperr.New(apperr.KindValidation, "acl entry user id is required")
		}
		if e.Role == "" {
			e.Role = model.ACLRoleViewer
		}
		e.WorkspaceID = workspaceID
		e.GrantedBy = actor.UserID
		if i, ok := index[e.UserID]; ok {
			deduped[i] = e
			continue
		}
		index[e.UserID] = len(deduped)
		deduped = append(deduped, e)
	}
	return s.acl.ReplaceAll(ctx, workspaceID, deduped)
}

func (s *WorkspaceService) Grant(ctx context.Context, actor model.Actor, workspaceID, userID string, role model.ACLRole) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !policy.CanManageACL(ws, actor) {
		return apperr.New(apperr.KindForbidden, "access list management denied").WithResource(workspaceID)
	}
	if userID == "" {
		return apperr.New(apperr.KindValidation, "user id is required")
	}
	if role == "" {
		role = model.ACLRoleViewer
	}
	return s.acl.Grant(ctx, model.ACLEntry{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		GrantedBy:   actor.UserID,
	})
}

func (s *WorkspaceService) Revoke(ctx context.Context, actor model.Actor, workspaceID, userID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !policy.CanManageACL(ws, actor) {
		return apperr.New(apperr.KindForbidden, "access list management denied").WithResource(workspaceID)
	}
	return s.acl.Revoke(ctx, workspaceID, userID)
}
