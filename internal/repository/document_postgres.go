package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

type PostgresDocumentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentRepository(pool *pgxpool.Pool) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{pool: pool}
}

const documentColumns = `id, workspace_id, title, source, metadata, tags, allowed_roles,
	COALESCE(status, ''), COALESCE(error_message, ''), file_name, mime_type, storage_key,
	uploaded_by_user_id, created_at, deleted_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	var metadata []byte
	var status string
	err := row.Scan(&doc.ID, &doc.WorkspaceID, &doc.Title, &doc.Source, &metadata, &doc.Tags,
		&doc.AllowedRoles, &status, &doc.ErrorMessage, &doc.FileName, &doc.MimeType,
		&doc.StorageKey, &doc.UploadedByUserID, &doc.CreatedAt, &doc.DeletedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
	}
	return &doc, nil
}

func (r *PostgresDocumentRepository) Insert(ctx context.Context, doc *model.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
INSERT INTO documents (id, workspace_id, title, source, metadata, tags, allowed_roles,
	status, error_message, file_name, mime_type, storage_key, uploaded_by_user_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
RETURNING created_at`,
		doc.ID, doc.WorkspaceID, doc.Title, doc.Source, metadata, doc.Tags, doc.AllowedRoles,
		string(doc.Status), doc.ErrorMessage, doc.FileName, doc.MimeType, doc.StorageKey,
		doc.UploadedByUserID,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "insert document", err)
	}
	return nil
}

func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id, workspaceID string) (*model.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `
SELECT `+documentColumns+` FROM documents
WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`, id, workspaceID))
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "document not found").WithResource(id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "get document", err)
	}
	return doc, nil
}

func (r *PostgresDocumentRepository) List(ctx context.Context, workspaceID string) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+documentColumns+` FROM documents
WHERE workspace_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC, id ASC`, workspaceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "list documents", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan document", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate documents", err)
	}
	return out, nil
}

func (r *PostgresDocumentRepository) SoftDelete(ctx context.Context, id, workspaceID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE documents SET deleted_at = NOW()
WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`, id, workspaceID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDatabase, "soft delete document", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresDocumentRepository) SoftDeleteByWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE documents SET deleted_at = NOW()
WHERE workspace_id = $1 AND deleted_at IS NULL`, workspaceID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDatabase, "soft delete workspace documents", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresDocumentRepository) HardDelete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "hard delete document", err)
	}
	return nil
}
