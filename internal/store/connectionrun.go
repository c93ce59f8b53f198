package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
)

type ConnectionRunStore struct {
	pool *pgxpool.Pool
}

func NewConnectionRunStore(pool *pgxpool.Pool) *ConnectionRunStore {
	return &ConnectionRunStore{pool: pool}
}

// UpdateConnectionRun is the partial-patch payload for
// ConnectionRunStore.UpdateByUUID — only non-nil fields are written.
type UpdateConnectionRun struct {
	Status       *ConnectionRunStatus
	ErrorMessage *string
}

// ConnectionRunFilter narrows ConnectionRunStore.List.
type ConnectionRunFilter struct {
	ConnectionID *int64
	Status       *ConnectionRunStatus
}

const connectionRunColumns = `id, uuid, connection_id, status, error_message, run_type, created_at, updated_at`

func scanConnectionRun(row pgx.Row) (*ConnectionRun, error) {
	var r ConnectionRun
	if err := row.Scan(&r.ID, &r.UUID, &r.ConnectionID, &r.Status, &r.ErrorMessage, &r.RunType, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ConnectionRunStore) Create(ctx context.Context, connectionID int64, tx ...pgx.Tx) (*ConnectionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO connection_run (connection_id)
		VALUES ($1)
		RETURNING `+connectionRunColumns, connectionID)

	r, err := scanConnectionRun(row)
	if err != nil {
		return nil, fmt.Errorf("create connection run: %w", err)
	}
	return r, nil
}

func (s *ConnectionRunStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*ConnectionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+connectionRunColumns+` FROM connection_run WHERE id = $1`, id)
	r, err := scanConnectionRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_run"}
	}
	if err != nil {
		return nil, fmt.Errorf("get connection run: %w", err)
	}
	return r, nil
}

func (s *ConnectionRunStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*ConnectionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+connectionRunColumns+` FROM connection_run WHERE uuid = $1`, id)
	r, err := scanConnectionRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_run"}
	}
	if err != nil {
		return nil, fmt.Errorf("get connection run by uuid: %w", err)
	}
	return r, nil
}

// UpdateByUUID applies a partial patch: only non-nil fields on patch are
// written, updated_at is always refreshed.
func (s *ConnectionRunStore) UpdateByUUID(ctx context.Context, id uuid.UUID, patch UpdateConnectionRun, tx ...pgx.Tx) (*ConnectionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE connection_run SET
			status = COALESCE($2, status),
			error_message = COALESCE($3, error_message),
			updated_at = now()
		WHERE uuid = $1
		RETURNING `+connectionRunColumns, id, patch.Status, patch.ErrorMessage)

	r, err := scanConnectionRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_run"}
	}
	if err != nil {
		return nil, fmt.Errorf("update connection run: %w", err)
	}
	return r, nil
}

// List returns a filtered, paginated view over connection_run, newest first.
// page is 1-indexed; page values below 1 are coerced up to 1.
func (s *ConnectionRunStore) List(ctx context.Context, page, perPage int64, filter ConnectionRunFilter, tx ...pgx.Tx) (PageResult[ConnectionRun], error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	page = normalizePage(page)
	q := pick(s.pool, tx)

	var where []string
	var args []any
	if filter.ConnectionID != nil {
		args = append(args, *filter.ConnectionID)
		where = append(where, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM connection_run `+whereClause, args...).Scan(&total); err != nil {
		return PageResult[ConnectionRun]{}, fmt.Errorf("count connection runs: %w", err)
	}

	limitArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM connection_run %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, connectionRunColumns, whereClause, len(limitArgs)-1, len(limitArgs)), limitArgs...)
	if err != nil {
		return PageResult[ConnectionRun]{}, fmt.Errorf("list connection runs: %w", err)
	}
	defer rows.Close()

	var items []ConnectionRun
	for rows.Next() {
		r, err := scanConnectionRun(rows)
		if err != nil {
			return PageResult[ConnectionRun]{}, fmt.Errorf("scan connection run: %w", err)
		}
		items = append(items, *r)
	}
	if err := rows.Err(); err != nil {
		return PageResult[ConnectionRun]{}, err
	}

	return PageResult[ConnectionRun]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: computeTotalPages(total, perPage),
	}, nil
}

// MarkError sets status=error and records the message; run status otherwise
// defaults to success and is never flipped back once errored by this engine.
func (s *ConnectionRunStore) MarkError(ctx context.Context, id int64, message string) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE connection_run SET status = 'error', error_message = $2, updated_at = now() WHERE id = $1
	`, id, message)
	if err != nil {
		return fmt.Errorf("mark connection run error: %w", err)
	}
	return nil
}
