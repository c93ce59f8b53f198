package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
)

type SyncEventStore struct {
	pool *pgxpool.Pool
}

func NewSyncEventStore(pool *pgxpool.Pool) *SyncEventStore {
	return &SyncEventStore{pool: pool}
}

func scanSyncEvent(row pgx.Row) (*SyncEvent, error) {
	var e SyncEvent
	err := row.Scan(
		&e.ID, &e.UUID, &e.OriginalRecordBody, &e.Details, &e.EventDirection,
		&e.InventoryRecordEventID, &e.ConnectionSyncStateID, &e.ConnectionRunID,
		&e.SyncEventMethod, &e.SyncEventCategory, &e.Attempts, &e.Status,
		&e.LastError, &e.LastErroredDate, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const syncEventColumns = `id, uuid, original_record_body, details, event_direction,
	inventory_record_event_id, connection_sync_state_id, connection_run_id,
	sync_event_method, sync_event_category, attempts, status,
	last_error, last_errored_date, created_at, updated_at`

// CreateSyncEvent creates any sync event — list/get/create/update/delete,
// pushed or pulled, against any category. The recurring List/Inventory
// lock-token event is created through CreateRecurring instead, which pins
// the method/category/direction this constructor leaves open.
type CreateSyncEvent struct {
	OriginalRecordBody    []byte
	Details               []byte
	EventDirection        SyncEventDirection
	InventoryRecordEventID *int64
	ConnectionSyncStateID *int64
	SyncEventMethod       SyncEventMethod
	SyncEventCategory     SyncEventCategory
	Attempts              *int32
	Status                *SyncEventStatus
	LastError             []byte
	LastErroredDate       *time.Time
}

// UpdateSyncEvent is the partial-patch payload for SyncEventStore.UpdateByID
// / UpdateByUUID — only non-nil fields are written.
type UpdateSyncEvent struct {
	OriginalRecordBody     []byte
	Details                []byte
	EventDirection         *SyncEventDirection
	InventoryRecordEventID *int64
	SyncEventMethod        *SyncEventMethod
	SyncEventCategory      *SyncEventCategory
	Attempts               *int32
	Status                 *SyncEventStatus
	LastError              []byte
	LastErroredDate        *time.Time
	ConnectionSyncStateID  *int64
}

// SyncEventFilter narrows SyncEventStore.List.
type SyncEventFilter struct {
	InventoryRecordEventID *int64
	ConnectionSyncStateID  *int64
	SyncEventMethod        *SyncEventMethod
	SyncEventCategory      *SyncEventCategory
	Status                 *SyncEventStatus
}

func (s *SyncEventStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+syncEventColumns+` FROM sync_event WHERE id = $1`, id)
	e, err := scanSyncEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "sync_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("get sync event: %w", err)
	}
	return e, nil
}

func (s *SyncEventStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+syncEventColumns+` FROM sync_event WHERE uuid = $1`, id)
	e, err := scanSyncEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "sync_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("get sync event by uuid: %w", err)
	}
	return e, nil
}

// Create inserts a general sync event — pushed or pulled, any method or
// category — distinct from the hardcoded recurring List/Inventory lock
// token CreateRecurring manages.
func (s *SyncEventStore) Create(ctx context.Context, in CreateSyncEvent, tx ...pgx.Tx) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	attempts := int32(0)
	if in.Attempts != nil {
		attempts = *in.Attempts
	}
	status := SyncEventStatusPending
	if in.Status != nil {
		status = *in.Status
	}

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO sync_event (
			original_record_body, details, event_direction, inventory_record_event_id,
			connection_sync_state_id, sync_event_method, sync_event_category,
			attempts, status, last_error, last_errored_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+syncEventColumns,
		in.OriginalRecordBody, in.Details, in.EventDirection, in.InventoryRecordEventID,
		in.ConnectionSyncStateID, in.SyncEventMethod, in.SyncEventCategory,
		attempts, status, in.LastError, in.LastErroredDate,
	)

	e, err := scanSyncEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create sync event: %w", err)
	}
	return e, nil
}

// UpdateByID applies a partial patch: only non-nil fields on patch are
// written, updated_at is always refreshed.
func (s *SyncEventStore) UpdateByID(ctx context.Context, id int64, patch UpdateSyncEvent, tx ...pgx.Tx) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE sync_event SET
			original_record_body = COALESCE($2, original_record_body),
			details = COALESCE($3, details),
			event_direction = COALESCE($4, event_direction),
			inventory_record_event_id = COALESCE($5, inventory_record_event_id),
			sync_event_method = COALESCE($6, sync_event_method),
			sync_event_category = COALESCE($7, sync_event_category),
			attempts = COALESCE($8, attempts),
			status = COALESCE($9, status),
			last_error = COALESCE($10, last_error),
			last_errored_date = COALESCE($11, last_errored_date),
			connection_sync_state_id = COALESCE($12, connection_sync_state_id),
			updated_at = now()
		WHERE id = $1
		RETURNING `+syncEventColumns,
		id, patch.OriginalRecordBody, patch.Details, patch.EventDirection, patch.InventoryRecordEventID,
		patch.SyncEventMethod, patch.SyncEventCategory, patch.Attempts, patch.Status,
		patch.LastError, patch.LastErroredDate, patch.ConnectionSyncStateID,
	)

	e, err := scanSyncEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "sync_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("update sync event: %w", err)
	}
	return e, nil
}

func (s *SyncEventStore) UpdateByUUID(ctx context.Context, id uuid.UUID, patch UpdateSyncEvent, tx ...pgx.Tx) (*SyncEvent, error) {
	event, err := s.GetByUUID(ctx, id, tx...)
	if err != nil {
		return nil, err
	}
	return s.UpdateByID(ctx, event.ID, patch, tx...)
}

// List returns a filtered, paginated view over sync_event, newest first.
// page is 1-indexed; page values below 1 are coerced up to 1.
func (s *SyncEventStore) List(ctx context.Context, page, perPage int64, filter SyncEventFilter, tx ...pgx.Tx) (PageResult[SyncEvent], error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	page = normalizePage(page)
	q := pick(s.pool, tx)

	var where []string
	var args []any
	if filter.InventoryRecordEventID != nil {
		args = append(args, *filter.InventoryRecordEventID)
		where = append(where, fmt.Sprintf("inventory_record_event_id = $%d", len(args)))
	}
	if filter.ConnectionSyncStateID != nil {
		args = append(args, *filter.ConnectionSyncStateID)
		where = append(where, fmt.Sprintf("connection_sync_state_id = $%d", len(args)))
	}
	if filter.SyncEventMethod != nil {
		args = append(args, *filter.SyncEventMethod)
		where = append(where, fmt.Sprintf("sync_event_method = $%d", len(args)))
	}
	if filter.SyncEventCategory != nil {
		args = append(args, *filter.SyncEventCategory)
		where = append(where, fmt.Sprintf("sync_event_category = $%d", len(args)))
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
	if err := q.QueryRow(ctx, `SELECT count(*) FROM sync_event `+whereClause, args...).Scan(&total); err != nil {
		return PageResult[SyncEvent]{}, fmt.Errorf("count sync events: %w", err)
	}

	limitArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM sync_event %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, syncEventColumns, whereClause, len(limitArgs)-1, len(limitArgs)), limitArgs...)
	if err != nil {
		return PageResult[SyncEvent]{}, fmt.Errorf("list sync events: %w", err)
	}
	defer rows.Close()

	var items []SyncEvent
	for rows.Next() {
		e, err := scanSyncEvent(rows)
		if err != nil {
			return PageResult[SyncEvent]{}, fmt.Errorf("scan sync event: %w", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return PageResult[SyncEvent]{}, err
	}

	return PageResult[SyncEvent]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: computeTotalPages(total, perPage),
	}, nil
}

// FindPendingOrErroredRecurring finds the single recurring List/Inventory
// sync event for a connection's sync state that is ready to be (re-)run —
// the de facto lock token serializing poll cycles for that connection.
func (s *SyncEventStore) FindPendingOrErroredRecurring(ctx context.Context, syncStateID int64) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT `+syncEventColumns+`
		FROM sync_event
		WHERE connection_sync_state_id = $1
			AND sync_event_method = 'list'
			AND sync_event_category = 'inventory'
			AND status IN ('pending', 'error')
		LIMIT 1
	`, syncStateID)

	e, err := scanSyncEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "sync_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("find pending/errored recurring event: %w", err)
	}
	return e, nil
}

// FindInProgressRecurring finds the in-progress recurring List/Inventory
// event for a connection's sync state. At most one should exist at a time.
func (s *SyncEventStore) FindInProgressRecurring(ctx context.Context, syncStateID int64) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT `+syncEventColumns+`
		FROM sync_event
		WHERE connection_sync_state_id = $1
			AND sync_event_method = 'list'
			AND sync_event_category = 'inventory'
			AND status = 'in_progress'
		LIMIT 1
	`, syncStateID)

	e, err := scanSyncEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "sync_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("find in-progress recurring event: %w", err)
	}
	return e, nil
}

// CreateRecurring creates the first-ever List/Inventory recurring event for
// a connection, already InProgress and linked to the run that triggered it.
func (s *SyncEventStore) CreateRecurring(ctx context.Context, syncStateID, runID int64) (*SyncEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_event (
			event_direction, sync_event_method, sync_event_category,
			attempts, status, connection_sync_state_id, connection_run_id
		) VALUES ('pull_from_external', 'list', 'inventory', 1, 'in_progress', $1, $2)
		RETURNING `+syncEventColumns, syncStateID, runID)

	e, err := scanSyncEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create recurring sync event: %w", err)
	}
	return e, nil
}

// BeginCycle marks an existing event in_progress for a new poll cycle,
// incrementing attempts and linking it to the new run.
func (s *SyncEventStore) BeginCycle(ctx context.Context, id, runID int64) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE sync_event SET
			status = 'in_progress', attempts = attempts + 1, connection_run_id = $2, updated_at = now()
		WHERE id = $1
	`, id, runID)
	if err != nil {
		return fmt.Errorf("begin sync event cycle: %w", err)
	}
	return nil
}

// MarkError sets status=error and records the error payload (JSON).
func (s *SyncEventStore) MarkError(ctx context.Context, id int64, errBody []byte) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE sync_event SET status = 'error', last_error = $2, last_errored_date = now(), updated_at = now()
		WHERE id = $1
	`, id, errBody)
	if err != nil {
		return fmt.Errorf("mark sync event error: %w", err)
	}
	return nil
}

// FinishCycle records the terminal state of a poll cycle for the recurring
// List event: always Pending so the next sendRequestXML call picks it up
// again, never a one-shot Success/Completed state. errBody is nil on a
// clean pass.
func (s *SyncEventStore) FinishCycle(ctx context.Context, id int64, errBody []byte) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	var err error
	if errBody != nil {
		_, err = s.pool.Exec(ctx, `
			UPDATE sync_event SET status = 'pending', last_error = $2, last_errored_date = now(), updated_at = now()
			WHERE id = $1
		`, id, errBody)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE sync_event SET status = 'pending', updated_at = now() WHERE id = $1
		`, id)
	}
	if err != nil {
		return fmt.Errorf("finish sync event cycle: %w", err)
	}
	return nil
}
