package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragspace/internal/apperr"
	"ragspace/internal/model"
)

type PostgresACLRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresACLRepository(pool *pgxpool.Pool) *PostgresACLRepository {
	return &PostgresACLRepository{pool: pool}
}

func (r *PostgresACLRepository) ListUserIDs(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT user_id FROM workspace_acl
WHERE workspace_id = $1
ORDER BY created_at ASC, user_id ASC`, workspaceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "list acl user ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan acl user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate acl user ids", err)
	}
	return ids, nil
}

func (r *PostgresACLRepository) ListEntries(ctx context.Context, workspaceID string) ([]model.ACLEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT workspace_id, user_id, role, granted_by, created_at FROM workspace_acl
WHERE workspace_id = $1
ORDER BY created_at ASC, user_id ASC`, workspaceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "list acl entries", err)
	}
	defer rows.Close()

	var entries []model.ACLEntry
	for rows.Next() {
		var e model.ACLEntry
		if err := rows.Scan(&e.WorkspaceID, &e.UserID, &e.Role, &e.GrantedBy, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan acl entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate acl entries", err)
	}
	return entries, nil
}

func (r *PostgresACLRepository) ListWorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT workspace_id FROM workspace_acl
WHERE user_id = $1
ORDER BY created_at ASC, workspace_id ASC`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "list workspaces for user", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "scan workspace id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "iterate workspace ids", err)
	}
	return ids, nil
}

func (r *PostgresACLRepository) Grant(ctx context.Context, entry model.ACLEntry) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO workspace_acl (workspace_id, user_id, role, granted_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by`,
		entry.WorkspaceID, entry.UserID, string(entry.Role), entry.GrantedBy)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "grant acl entry", err)
	}
	return nil
}

func (r *PostgresACLRepository) Revoke(ctx context.Context, workspaceID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM workspace_acl WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "revoke acl entry", err)
	}
	return nil
}

func (r *PostgresACLRepository) ReplaceAll(ctx context.Context, workspaceID string, entries []model.ACLEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM workspace_acl WHERE workspace_id = $1`, workspaceID); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "clear acl", err)
	}
	// Last entry wins for a repeated user id, matching Grant.
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
INSERT INTO workspace_acl (workspace_id, user_id, role, granted_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by`,
			workspaceID, e.UserID, string(e.Role), e.GrantedBy); err != nil {
			return apperr.Wrap(apperr.KindDatabase, "insert acl entry", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindDatabase, "commit transaction", err)
	}
	return nil
}
