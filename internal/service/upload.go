package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
	"ragspace/internal/queue"
	"ragspace/internal/repository"
	"ragspace/internal/storage"
)

const enqueueFailureMessage = "Failed to enqueue document processing job"

// StatusStore is the compare-and-set facet of the vector index. All
// status moves go through it.
type StatusStore interface {
	TransitionDocumentStatus(ctx context.Context, id, workspaceID string, from []model.DocumentStatus, to model.DocumentStatus, errorMessage string) (bool, error)
}

// UploadRequest carries one file into a workspace.
type UploadRequest struct {
	WorkspaceID string
	FileName    string
	MimeType    string
	Title       string
	Tags        []string
	Body        io.Reader
}

// UploadResult is returned to the client; processing continues async.
type UploadResult struct {
	DocumentID string
	Status     model.DocumentStatus
	FileName   string
	MimeType   string
}

// UploadService stores raw bytes, persists the document row as PENDING
// and enqueues processing, compensating on partial failure.
type UploadService struct {
	workspaces *WorkspaceService
	documents  repository.DocumentRepository
	objects    storage.ObjectStore
	jobs       queue.Queue
	statuses   StatusStore
	maxBytes   int64
	logger     *zap.Logger
}

func NewUploadService(workspaces *WorkspaceService, documents repository.DocumentRepository,
	objects storage.ObjectStore, jobs queue.Queue, statuses StatusStore,
	maxBytes int64, logger *zap.Logger) *UploadService {
	return &UploadService{
		workspaces: workspaces,
		documents:  documents,
		objects:    objects,
		jobs:       jobs,
		statuses:   statuses,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

var mimeByExtension = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DetectMimeType resolves a missing content type from the file extension.
func DetectMimeType(fileName, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mime
	}
	return declared
}

// StorageKey is the deterministic object key for a document's bytes.
func StorageKey(documentID, fileName string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, fileName)
}

func (s *UploadService) Upload(ctx context.Context, actor model.Actor, req UploadRequest) (*UploadResult, error) {
	if _, err := s.workspaces.AuthorizeWrite(ctx, actor, req.WorkspaceID); err != nil {
		return nil, err
	}
	if s.objects == nil || s.jobs == nil {
		return nil, apperr.New(apperr.KindServiceUnavailable, "document upload is not configured")
	}

	fileName := filepath.Base(strings.TrimSpace(req.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.New(apperr.KindValidation, "file name is required")
	}
	mimeType := DetectMimeType(fileName, req.MimeType)
	if mimeType == "" {
		return nil, apperr.New(apperr.KindValidation, "content type could not be determined")
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, s.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to read upload body", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperr.Newf(apperr.KindValidation, "file exceeds maximum size of %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindValidation, "file is empty")
	}

	documentID := uuid.NewString()
	key := StorageKey(documentID, fileName)

	// Bytes first, so a persisted row never points at a missing object.
	if err := s.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fileName
	}
	doc := &model.Document{
		ID:               documentID,
		WorkspaceID:      req.WorkspaceID,
		Title:            title,
		Source:           "upload",
		Tags:             req.Tags,
		Status:           model.StatusPending,
		FileName:         fileName,
		MimeType:         mimeType,
		StorageKey:       key,
		UploadedByUserID: actor.UserID,
	}
	if err := s.documents.Insert(ctx, doc); err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to compensate stored object",
				zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	if _, err := s.jobs.Enqueue(ctx, documentID, req.WorkspaceID); err != nil {
		// Row and object stay; the document is retryable via reprocess.
		if _, tErr := s.statuses.TransitionDocumentStatus(ctx, documentID, req.WorkspaceID,
			[]model.DocumentStatus{model.StatusPending}, model.StatusFailed, enqueueFailureMessage); tErr != nil {
			s.logger.Error("failed to mark document after enqueue failure",
				zap.String("document_id", documentID), zap.Error(tErr))
		}
		return nil, apperr.Wrap(apperr.KindServiceUnavailable, enqueueFailureMessage, err)
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", documentID),
		zap.String("workspace_id", req.WorkspaceID),
		zap.String("file_name", fileName),
		zap.Int("bytes", len(data)))

	return &UploadResult{
		DocumentID: documentID,
		Status:     model.StatusPending,
		FileName:   fileName,
		MimeType:   mimeType,
	}, nil
}
