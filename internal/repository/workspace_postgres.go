package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

const uniqueViolation = "23505"

type PostgresWorkspaceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresWorkspaceRepository(pool *pgxpool.Pool) *PostgresWorkspaceRepository {
	return &PostgresWorkspaceRepository{pool: pool}
}

const workspaceColumns = `id, name, description, visibility, owner_user_id, archived_at, created_at, updated_at`

func scanWorkspace(row pgx.Row) (*model.Workspace, error) {
	var ws model.Workspace
	err := row.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.Visibility, &ws.OwnerUserID,
		&ws.ArchivedAt, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *PostgresWorkspaceRepository) Create(ctx context.Context, ws *model.Workspace) error {
	err := r.pool.QueryRow(ctx, `
INSERT INTO workspaces (id, name, description, visibility, owner_user_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`,
		ws.ID, ws.Name, ws.Description, string(ws.Visibility), ws.OwnerUserID,
	).Scan(&ws.CreatedAt, &ws.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Newf(apperr.KindConflict, "workspace %q already exists for this owner", ws.Name)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "insert workspace", err)
	}
	return nil
}

func (r *PostgresWorkspaceRepository) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	ws, err := scanWorkspace(r.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "workspace not found").WithResource(id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "get workspace", err)
	}
	return ws, nil
}

func (r *PostgresWorkspaceRepository) GetByOwnerAndName(ctx context.Context, ownerUserID, name string) (*model.Workspace, error) {
	ws, err := scanWorkspace(r.pool.QueryRow(ctx, `
SELECT `+workspaceColumns+` FROM workspaces
WHERE owner_user_id = $1 AND LOWER(name) = LOWER($2)`, ownerUserID, name))
	if err == pgx.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "workspace not found").WithResource(name)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "get workspace by name", err)
	}
	return ws, nil
}

func (r *PostgresWorkspaceRepository) ListForOwner(ctx context.Context, ownerUserID string) ([]model.Workspace, error) {
	return r.list(ctx, `
SELECT `+workspaceColumns+` FROM workspaces
WHERE owner_user_id = $1 AND archived_at IS NULL
ORDER BY created_at ASC, id ASC`, ownerUserID)
}

func (r *PostgresWorkspaceRepository) ListByVisibility(ctx context.Context, visibility model.Visibility) ([]model.Workspace, error) {
	return r.list(ctx, `
SELECT `+workspaceColumns+` FROM workspaces
WHERE visibility = $1 AND archived_at IS NULL
ORDER BY created_at ASC, id ASC`, string(visibility))
}

func (r *PostgresWorkspaceRepository) list(ctx context.Context, query string, args ...any) ([]model.Workspace, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "list workspaces", err)
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan workspace", err)
		}
		out = append(out, *ws)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate workspaces", err)
	}
	return out, nil
}

func (r *PostgresWorkspaceRepository) Update(ctx context.Context, ws *model.Workspace) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE workspaces
SET name = $1, description = $2, visibility = $3, updated_at = NOW()
WHERE id = $4`,
		ws.Name, ws.Description, string(ws.Visibility), ws.ID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Newf(apperr.KindConflict, "workspace %q already exists for this owner", ws.Name)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "update workspace", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "workspace not found").WithResource(ws.ID)
	}
	return nil
}

func (r *PostgresWorkspaceRepository) Archive(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE workspaces
SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "archive workspace", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "workspace not found").WithResource(id)
	}
	return nil
}
