package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

// PostgresIndex implements Index on Postgres with the pgvector
// extension. Cosine distance uses the `<=>` operator backed by an HNSW
// index on the chunks table.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *zap.Logger
}

// NewPostgresIndex wraps an existing pool. dimension is the only vector
// width accepted on insert.
func NewPostgresIndex(pool *pgxpool.Pool, dimension int, logger *zap.Logger) *PostgresIndex {
	return &PostgresIndex{pool: pool, dimension: dimension, logger: logger}
}

func (s *PostgresIndex) validateChunks(chunks []model.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return apperr.Newf(apperr.KindValidation,
				"chunk %d embedding dimension mismatch: expected %d got %d", i, s.dimension, len(c.Embedding))
		}
	}
	return nil
}

func (s *PostgresIndex) SaveDocumentWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	if err := s.validateChunks(chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO documents (id, workspace_id, title, source, metadata, tags, allowed_roles,
	status, error_message, file_name, mime_type, storage_key, uploaded_by_user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13, NOW())`,
		doc.ID, doc.WorkspaceID, doc.Title, doc.Source, metadata, doc.Tags, doc.AllowedRoles,
		string(doc.Status), doc.ErrorMessage, doc.FileName, doc.MimeType, doc.StorageKey, doc.UploadedByUserID,
	); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "insert document", err)
	}

	if err := s.insertChunks(ctx, tx, doc.ID, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "commit transaction", err)
	}
	return nil
}

func (s *PostgresIndex) SaveChunks(ctx context.Context, documentID string, chunks []model.Chunk, workspaceID string) error {
	if err := s.validateChunks(chunks); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT workspace_id FROM documents WHERE id = $1 AND deleted_at IS NULL`, documentID).Scan(&owner)
	if err == pgx.ErrNoRows {
		return apperr.New(apperr.KindNotFound, "document not found").WithResource(documentID)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "lookup document workspace", err)
	}
	if owner != workspaceID {
		return apperr.New(apperr.KindForbidden, "document does not belong to workspace").WithResource(documentID)
	}

	// Chunks are replaced as a set; never partially updated.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "delete existing chunks", err)
	}

	if err := s.insertChunks(ctx, tx, documentID, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "commit transaction", err)
	}
	return nil
}

func (s *PostgresIndex) insertChunks(ctx context.Context, tx pgx.Tx, documentID string, chunks []model.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		batch.Queue(`
INSERT INTO chunks (id, document_id, chunk_index, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, documentID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), metadata)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return apperr.Wrap(apperr.KindDatabase, "insert chunk", err)
		}
	}
	return nil
}

func (s *PostgresIndex) FindSimilarChunks(ctx context.Context, embedding []float32, k int, workspaceID string) ([]model.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dimension {
		return nil, apperr.Newf(apperr.KindValidation,
			"query embedding dimension mismatch: expected %d got %d", s.dimension, len(embedding))
	}

	rows, err := s.pool.Query(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding, c.metadata,
	1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.workspace_id = $2 AND d.deleted_at IS NULL
ORDER BY c.embedding <=> $1
LIMIT $3`, pgvector.NewVector(embedding), workspaceID, k)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "query similar chunks", err)
	}
	defer rows.Close()

	var out []model.RetrievedChunk
	for rows.Next() {
		var rc model.RetrievedChunk
		var vec pgvector.Vector
		var metadata []byte
		if err := rows.Scan(&rc.ID, &rc.DocumentID, &rc.ChunkIndex, &rc.Content, &vec, &metadata, &rc.Similarity); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan chunk", err)
		}
		rc.Embedding = vec.Slice()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rc.Metadata); err != nil {
				s.logger.Warn("failed to decode chunk metadata", zap.String("chunk_id", rc.ID), zap.Error(err))
			}
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate chunks", err)
	}
	return out, nil
}

func (s *PostgresIndex) FindSimilarChunksMMR(ctx context.Context, embedding []float32, topK, fetchK int, lambda float64, workspaceID string) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if fetchK < topK {
		fetchK = topK
	}
	candidates, err := s.FindSimilarChunks(ctx, embedding, fetchK, workspaceID)
	if err != nil {
		return nil, err
	}
	return MaximalMarginalRelevance(embedding, candidates, topK, lambda), nil
}

func (s *PostgresIndex) TransitionDocumentStatus(ctx context.Context, id, workspaceID string, from []model.DocumentStatus, to model.DocumentStatus, errorMessage string) (bool, error) {
	fromValues := make([]string, 0, len(from))
	includeNull := false
	for _, st := range from {
		if st == model.StatusNone {
			includeNull = true
			continue
		}
		fromValues = append(fromValues, string(st))
	}

	cond := "status = ANY($5)"
	if includeNull {
		cond = "(status = ANY($5) OR status IS NULL)"
	}

	errorMessage = model.TruncateErrorMessage(errorMessage)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
UPDATE documents
SET status = NULLIF($1, ''), error_message = NULLIF($2, '')
WHERE id = $3 AND workspace_id = $4 AND deleted_at IS NULL AND %s`, cond),
		string(to), errorMessage, id, workspaceID, fromValues)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDatabase, "transition document status", err)
	}
	changed := tag.RowsAffected() > 0
	if !changed {
		s.logger.Debug("status transition did not apply",
			zap.String("document_id", id), zap.String("to", string(to)))
	}
	return changed, nil
}
