package worker

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/metrics"
	"ragspace/internal/model"
	"ragspace/internal/queue"
	"ragspace/internal/repository"
	"ragspace/internal/retry"
	"ragspace/internal/storage"
	"ragspace/internal/textsplit"
)

// Job outcomes reported via metrics and logs.
const (
	OutcomeReady   = "ready"
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
	OutcomeMissing = "missing"
	OutcomeSkipped = "skipped"
)

const missingMetadataMessage = "Missing file metadata for processing"

// ChunkIndex is the vector-index facet the processor needs: chunk
// replacement and status compare-and-set.
type ChunkIndex interface {
	SaveChunks(ctx context.Context, documentID string, chunks []model.Chunk, workspaceID string) error
	TransitionDocumentStatus(ctx context.Context, id, workspaceID string, from []model.DocumentStatus, to model.DocumentStatus, errorMessage string) (bool, error)
}

// Embedder is the batch facet of the embedding provider.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Processor executes one document-processing job. Idempotent given the
// ingestion state machine: claims via compare-and-set and never leaves
// a document in PROCESSING.
type Processor struct {
	documents  repository.DocumentRepository
	index      ChunkIndex
	objects    storage.ObjectStore
	extractors *ExtractorRegistry
	chunker    textsplit.Chunker
	embedder   Embedder
	retryCfg   retry.Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewProcessor(documents repository.DocumentRepository, index ChunkIndex, objects storage.ObjectStore,
	extractors *ExtractorRegistry, chunker textsplit.Chunker, embedder Embedder,
	retryCfg retry.Config, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		documents:  documents,
		index:      index,
		objects:    objects,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		retryCfg:   retryCfg,
		metrics:    m,
		logger:     logger,
	}
}

// Process handles one job and returns the outcome label.
func (p *Processor) Process(ctx context.Context, job *queue.Job) string {
	start := time.Now()
	outcome := p.process(ctx, job)
	p.metrics.WorkerOutcomes.WithLabelValues(outcome).Inc()
	p.metrics.WorkerJobSeconds.Observe(time.Since(start).Seconds())
	p.logger.Info("job processed",
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)))
	return outcome
}

func (p *Processor) process(ctx context.Context, job *queue.Job) string {
	doc, err := p.documents.GetByID(ctx, job.DocumentID, job.WorkspaceID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return OutcomeMissing
		}
		p.logger.Error("failed to load document", zap.String("document_id", job.DocumentID), zap.Error(err))
		return OutcomeInvalid
	}

	// Already done or owned by another worker.
	if doc.Status == model.StatusReady || doc.Status == model.StatusProcessing {
		return OutcomeSkipped
	}

	claimed, err := p.index.TransitionDocumentStatus(ctx, job.DocumentID, job.WorkspaceID,
		model.ClaimableStatuses, model.StatusProcessing, "")
	if err != nil {
		p.logger.Error("failed to claim document", zap.String("document_id", job.DocumentID), zap.Error(err))
		return OutcomeInvalid
	}
	if !claimed {
		return OutcomeInvalid
	}

	if err := p.ingest(ctx, doc); err != nil {
		p.fail(ctx, job, err)
		return OutcomeFailed
	}

	moved, err := p.index.TransitionDocumentStatus(ctx, job.DocumentID, job.WorkspaceID,
		model.FinishableStatuses, model.StatusReady, "")
	if err != nil || !moved {
		p.logger.Error("failed to finish document",
			zap.String("document_id", job.DocumentID), zap.Bool("moved", moved), zap.Error(err))
		p.fail(ctx, job, apperr.New(apperr.KindConflict, "could not transition to READY"))
		return OutcomeFailed
	}
	return OutcomeReady
}

func (p *Processor) ingest(ctx context.Context, doc *model.Document) error {
	if doc.StorageKey == "" || doc.MimeType == "" {
		return apperr.New(apperr.KindValidation, missingMetadataMessage)
	}

	body, err := p.objects.Download(ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return apperr.Wrap(apperr.KindServiceUnavailable, "failed to read stored object", err)
	}

	text, err := p.extractors.Extract(doc.MimeType, data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return apperr.New(apperr.KindValidation, "no text content extracted")
	}

	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		return apperr.New(apperr.KindValidation, "no chunks produced")
	}

	var vectors [][]float32
	err = retry.Do(ctx, p.logger, p.retryCfg, "embed_batch", func(ctx context.Context) error {
		var embErr error
		vectors, embErr = p.embedder.EmbedBatch(ctx, pieces)
		return embErr
	})
	if err != nil {
		return apperr.Wrap(apperr.KindEmbedding, "failed to embed document chunks", err)
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  vectors[i],
			Metadata: map[string]any{
				"file_name": doc.FileName,
			},
		}
	}

	// Replace-as-set: the old chunks disappear with the new insert in
	// one transaction.
	return p.index.SaveChunks(ctx, doc.ID, chunks, doc.WorkspaceID)
}

func (p *Processor) fail(ctx context.Context, job *queue.Job, cause error) {
	msg := model.TruncateErrorMessage(cause.Error())
	moved, err := p.index.TransitionDocumentStatus(ctx, job.DocumentID, job.WorkspaceID,
		model.FinishableStatuses, model.StatusFailed, msg)
	if err != nil || !moved {
		p.logger.Error("failed to mark document FAILED",
			zap.String("document_id", job.DocumentID), zap.Bool("moved", moved), zap.Error(err))
	}
	p.logger.Warn("document processing failed",
		zap.String("document_id", job.DocumentID),
		zap.String("error_message", msg))
}
