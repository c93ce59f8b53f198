package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
)

type SyncStateStore struct {
	pool *pgxpool.Pool
}

func NewSyncStateStore(pool *pgxpool.Pool) *SyncStateStore {
	return &SyncStateStore{pool: pool}
}

// UpdateSyncState is the partial-patch payload for SyncStateStore.Update —
// only non-nil fields are written. SyncCursor is deliberately excluded: it
// has its own full-rewrite setter (SetCursor) since clearing it to NULL
// cannot be expressed as a COALESCE patch.
type UpdateSyncState struct {
	SyncLockOwner          *string
	SyncLockUntil          *time.Time
	RateLimitRemaining     *int32
	RateLimit              *int32
	RateLimitResetAt       *time.Time
	RateLimitBackoffUntil  *time.Time
	RateLimitWindowSeconds *int32
}

const syncStateColumns = `id, uuid, connection_id, sync_cursor, sync_lock_owner, sync_lock_until,
	rate_limit_remaining, rate_limit, rate_limit_reset_at, rate_limit_backoff_until, rate_limit_window_seconds,
	created_at, updated_at`

func scanSyncState(row pgx.Row) (*ErpConnectionSyncState, error) {
	var st ErpConnectionSyncState
	err := row.Scan(
		&st.ID, &st.UUID, &st.ConnectionID, &st.SyncCursor, &st.SyncLockOwner, &st.SyncLockUntil,
		&st.RateLimitRemaining, &st.RateLimit, &st.RateLimitResetAt, &st.RateLimitBackoffUntil, &st.RateLimitWindowSeconds,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SyncStateStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*ErpConnectionSyncState, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+syncStateColumns+` FROM erp_connection_sync_state WHERE id = $1`, id)
	st, err := scanSyncState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_sync_state"}
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state by id: %w", err)
	}
	return st, nil
}

func (s *SyncStateStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*ErpConnectionSyncState, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+syncStateColumns+` FROM erp_connection_sync_state WHERE uuid = $1`, id)
	st, err := scanSyncState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_sync_state"}
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state by uuid: %w", err)
	}
	return st, nil
}

func (s *SyncStateStore) GetByConnectionID(ctx context.Context, connectionID int64, tx ...pgx.Tx) (*ErpConnectionSyncState, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+syncStateColumns+` FROM erp_connection_sync_state WHERE connection_id = $1`, connectionID)
	st, err := scanSyncState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_sync_state"}
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return st, nil
}

func (s *SyncStateStore) Create(ctx context.Context, connectionID int64, tx ...pgx.Tx) (*ErpConnectionSyncState, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO erp_connection_sync_state (connection_id)
		VALUES ($1)
		RETURNING `+syncStateColumns, connectionID)

	st, err := scanSyncState(row)
	if err != nil {
		return nil, fmt.Errorf("create sync state: %w", err)
	}
	return st, nil
}

// EnsureByConnectionID returns the existing sync state row for a connection,
// creating one if absent. Mirrors the ensure_sync_state helper the poll
// engine calls at the top of both phases.
func (s *SyncStateStore) EnsureByConnectionID(ctx context.Context, connectionID int64) (*ErpConnectionSyncState, error) {
	st, err := s.GetByConnectionID(ctx, connectionID)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return s.Create(ctx, connectionID)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SetCursor overwrites sync_cursor in full, including to NULL. A partial
// patch (e.g. "UPDATE ... SET sync_cursor = COALESCE($1, sync_cursor)")
// cannot express "clear the cursor", so every write here is a full rewrite
// of the column — the invariant the canonical schema relies on for
// pagination-complete detection.
func (s *SyncStateStore) SetCursor(ctx context.Context, id int64, cursor []byte) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE erp_connection_sync_state SET sync_cursor = $2, updated_at = now() WHERE id = $1
	`, id, cursor)
	if err != nil {
		return fmt.Errorf("set sync cursor: %w", err)
	}
	return nil
}

// Update applies a partial patch of the lock and rate-limit telemetry
// fields, mirroring the ERP API's rate-limit response headers back onto the
// connection's sync state. Only non-nil fields on patch are written.
func (s *SyncStateStore) Update(ctx context.Context, id int64, patch UpdateSyncState, tx ...pgx.Tx) (*ErpConnectionSyncState, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE erp_connection_sync_state SET
			sync_lock_owner = COALESCE($2, sync_lock_owner),
			sync_lock_until = COALESCE($3, sync_lock_until),
			rate_limit_remaining = COALESCE($4, rate_limit_remaining),
			rate_limit = COALESCE($5, rate_limit),
			rate_limit_reset_at = COALESCE($6, rate_limit_reset_at),
			rate_limit_backoff_until = COALESCE($7, rate_limit_backoff_until),
			rate_limit_window_seconds = COALESCE($8, rate_limit_window_seconds),
			updated_at = now()
		WHERE id = $1
		RETURNING `+syncStateColumns,
		id, patch.SyncLockOwner, patch.SyncLockUntil, patch.RateLimitRemaining, patch.RateLimit,
		patch.RateLimitResetAt, patch.RateLimitBackoffUntil, patch.RateLimitWindowSeconds,
	)

	st, err := scanSyncState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_sync_state"}
	}
	if err != nil {
		return nil, fmt.Errorf("update sync state: %w", err)
	}
	return st, nil
}
