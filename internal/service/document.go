package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
	"ragspace/internal/queue"
	"ragspace/internal/repository"
	"ragspace/internal/storage"
)

const downloadURLExpiry = 15 * time.Minute

// DocumentService exposes document lifecycle operations scoped to a
// workspace.
type DocumentService struct {
	workspaces *WorkspaceService
	documents  repository.DocumentRepository
	objects    storage.ObjectStore
	jobs       queue.Queue
	statuses   StatusStore
	logger     *zap.Logger
}

func NewDocumentService(workspaces *WorkspaceService, documents repository.DocumentRepository,
	objects storage.ObjectStore, jobs queue.Queue, statuses StatusStore, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		workspaces: workspaces,
		documents:  documents,
		objects:    objects,
		jobs:       jobs,
		statuses:   statuses,
		logger:     logger,
	}
}

func (s *DocumentService) List(ctx context.Context, actor model.Actor, workspaceID string) ([]model.Document, error) {
	if _, err := s.workspaces.AuthorizeRead(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return s.documents.List(ctx, workspaceID)
}

func (s *DocumentService) Get(ctx context.Context, actor model.Actor, workspaceID, documentID string) (*model.Document, error) {
	if _, err := s.workspaces.AuthorizeRead(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return s.documents.GetByID(ctx, documentID, workspaceID)
}

// Delete soft-deletes the row and best-effort removes the stored object.
// Chunks become unreachable through the deleted_at filter on search.
func (s *DocumentService) Delete(ctx context.Context, actor model.Actor, workspaceID, documentID string) error {
	if _, err := s.workspaces.AuthorizeWrite(ctx, actor, workspaceID); err != nil {
		return err
	}
	doc, err := s.documents.GetByID(ctx, documentID, workspaceID)
	if err != nil {
		return err
	}

	deleted, err := s.documents.SoftDelete(ctx, documentID, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.New(apperr.KindNotFound, "document not found").WithResource(documentID)
	}

	if doc.StorageKey != "" && s.objects != nil {
		if err := s.objects.Delete(ctx, doc.StorageKey); err != nil {
			s.logger.Warn("failed to delete stored object",
				zap.String("document_id", documentID),
				zap.String("key", doc.StorageKey),
				zap.Error(err))
		}
	}
	return nil
}

// DownloadURL returns a time-limited link to the original file.
func (s *DocumentService) DownloadURL(ctx context.Context, actor model.Actor, workspaceID, documentID string) (string, error) {
	if _, err := s.workspaces.AuthorizeRead(ctx, actor, workspaceID); err != nil {
		return "", err
	}
	doc, err := s.documents.GetByID(ctx, documentID, workspaceID)
	if err != nil {
		return "", err
	}
	if doc.StorageKey == "" {
		return "", apperr.New(apperr.KindNotFound, "document has no stored file").WithResource(documentID)
	}
	if s.objects == nil {
		return "", apperr.New(apperr.KindServiceUnavailable, "object storage is not configured")
	}
	return s.objects.PresignedURL(ctx, doc.StorageKey, downloadURLExpiry)
}

// Status reports the ingestion state and error message, if any.
func (s *DocumentService) Status(ctx context.Context, actor model.Actor, workspaceID, documentID string) (model.DocumentStatus, string, error) {
	doc, err := s.Get(ctx, actor, workspaceID, documentID)
	if err != nil {
		return "", "", err
	}
	return doc.Status, doc.ErrorMessage, nil
}

// Reprocess re-enqueues a document. Legal from any state except
// PROCESSING; the PENDING move and the enqueue mirror the upload flow.
func (s *DocumentService) Reprocess(ctx context.Context, actor model.Actor, workspaceID, documentID string) error {
	if _, err := s.workspaces.AuthorizeWrite(ctx, actor, workspaceID); err != nil {
		return err
	}
	if _, err := s.documents.GetByID(ctx, documentID, workspaceID); err != nil {
		return err
	}
	if s.jobs == nil {
		return apperr.New(apperr.KindServiceUnavailable, "document processing is not configured")
	}

	moved, err := s.statuses.TransitionDocumentStatus(ctx, documentID, workspaceID,
		model.EnqueueableStatuses, model.StatusPending, "")
	if err != nil {
		return err
	}
	if !moved {
		return apperr.New(apperr.KindConflict, "document is currently processing").WithResource(documentID)
	}

	if _, err := s.jobs.Enqueue(ctx, documentID, workspaceID); err != nil {
		if _, tErr := s.statuses.TransitionDocumentStatus(ctx, documentID, workspaceID,
			[]model.DocumentStatus{model.StatusPending}, model.StatusFailed, enqueueFailureMessage); tErr != nil {
			s.logger.Error("failed to mark document after enqueue failure",
				zap.String("document_id", documentID), zap.Error(tErr))
		}
		return apperr.Wrap(apperr.KindServiceUnavailable, enqueueFailureMessage, err)
	}
	return nil
}

// CancelProcessing force-fails a stuck PROCESSING document. Admin only;
// the actor is recorded in the error message.
func (s *DocumentService) CancelProcessing(ctx context.Context, actor model.Actor, workspaceID, documentID string) error {
	if actor.Role != model.ActorRoleAdmin {
		return apperr.New(apperr.KindForbidden, "cancelling processing requires admin role")
	}
	if _, err := s.documents.GetByID(ctx, documentID, workspaceID); err != nil {
		return err
	}

	msg := fmt.Sprintf("Processing cancelled by admin %s", actor.UserID)
	moved, err := s.statuses.TransitionDocumentStatus(ctx, documentID, workspaceID,
		model.FinishableStatuses, model.StatusFailed, msg)
	if err != nil {
		return err
	}
	if !moved {
		return apperr.New(apperr.KindConflict, "document is not processing").WithResource(documentID)
	}
	s.logger.Info("processing cancelled",
		zap.String("document_id", documentID),
		zap.String("admin", actor.UserID))
	return nil
}
