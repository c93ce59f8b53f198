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

type InventoryStore struct {
	pool *pgxpool.Pool
}

func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

// FindBySystemID looks up the canonical record by its logical dedup key —
// (originating_connection_id, system_id_key, system_id). There is no
// database unique constraint enforcing this key: the poll engine performs
// lookup-then-insert, so a race between two concurrent polls for the same
// connection can create a duplicate. The recurring sync event does not
// prevent this: SyncEventStore.BeginCycle does not check the event's current
// status, so two request phases that both read it as pending both proceed.
func (s *InventoryStore) FindBySystemID(ctx context.Context, connectionID int64, key InventorySystemIDKey, systemID string, tx ...pgx.Tx) (*InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	var r InventoryRecord
	err := pick(s.pool, tx).QueryRow(ctx, `
		SELECT id, uuid, tenant_id, originating_connection_id, system_id_key, system_id,
			original_record_body, created_at, updated_at
		FROM inventory_record
		WHERE originating_connection_id = $1 AND system_id_key = $2 AND system_id = $3
	`, connectionID, key, systemID).Scan(
		&r.ID, &r.UUID, &r.TenantID, &r.OriginatingConnectionID, &r.SystemIDKey, &r.SystemID,
		&r.OriginalRecordBody, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "inventory_record"}
	}
	if err != nil {
		return nil, fmt.Errorf("find inventory record by system id: %w", err)
	}
	return &r, nil
}

func (s *InventoryStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	var r InventoryRecord
	err := pick(s.pool, tx).QueryRow(ctx, `
		SELECT id, uuid, tenant_id, originating_connection_id, system_id_key, system_id,
			original_record_body, created_at, updated_at
		FROM inventory_record
		WHERE uuid = $1
	`, id).Scan(
		&r.ID, &r.UUID, &r.TenantID, &r.OriginatingConnectionID, &r.SystemIDKey, &r.SystemID,
		&r.OriginalRecordBody, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "inventory_record"}
	}
	if err != nil {
		return nil, fmt.Errorf("find inventory record by uuid: %w", err)
	}
	return &r, nil
}

func (s *InventoryStore) Create(ctx context.Context, tenantID, connectionID int64, key InventorySystemIDKey, systemID string, body []byte, tx ...pgx.Tx) (*InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	var r InventoryRecord
	err := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO inventory_record (tenant_id, originating_connection_id, system_id_key, system_id, original_record_body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, uuid, tenant_id, originating_connection_id, system_id_key, system_id,
			original_record_body, created_at, updated_at
	`, tenantID, connectionID, key, systemID, body).Scan(
		&r.ID, &r.UUID, &r.TenantID, &r.OriginatingConnectionID, &r.SystemIDKey, &r.SystemID,
		&r.OriginalRecordBody, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create inventory record: %w", err)
	}
	return &r, nil
}

// RefreshBody updates only original_record_body, the single field the poll
// engine re-observes on an already-known record.
func (s *InventoryStore) RefreshBody(ctx context.Context, id int64, body []byte, tx ...pgx.Tx) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := pick(s.pool, tx).Exec(ctx, `
		UPDATE inventory_record SET original_record_body = $2, updated_at = now() WHERE id = $1
	`, id, body)
	if err != nil {
		return fmt.Errorf("refresh inventory record body: %w", err)
	}
	return nil
}

// InventoryEventStore is the repository for inventory_record_event.
type InventoryEventStore struct {
	pool *pgxpool.Pool
}

func NewInventoryEventStore(pool *pgxpool.Pool) *InventoryEventStore {
	return &InventoryEventStore{pool: pool}
}

// InventoryEventFields is both the creation payload and the partial-patch
// payload for an inventory_record_event observation. Every field is
// optional: a given poll response rarely reports the full set (QBD's
// ItemInventoryQueryRs, for instance, omits SalesPrice/QuantityOnHand on
// some items), and a nil field must leave the previously-recorded column
// untouched rather than wipe it to NULL.
type InventoryEventFields struct {
	OriginalRecordBody []byte
	Price              *int32
	Currency           *InventoryCurrency
	Name               *string
	Description        *string
	Attributes         *string
	Qty                *int32
	ExternalCode       *string
}

const inventoryEventColumns = `id, uuid, inventory_record_id, connection_id, original_record_body,
	price, currency, name, description, attributes, qty, external_code, created_at, updated_at`

func scanInventoryEvent(row pgx.Row) (*InventoryRecordEvent, error) {
	var e InventoryRecordEvent
	err := row.Scan(
		&e.ID, &e.UUID, &e.InventoryRecordID, &e.ConnectionID, &e.OriginalRecordBody,
		&e.Price, &e.Currency, &e.Name, &e.Description, &e.Attributes, &e.Qty, &e.ExternalCode,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InventoryEventFilter narrows InventoryEventStore.List.
type InventoryEventFilter struct {
	InventoryRecordID *int64
	ConnectionID      *int64
}

// FindLatest returns the most recently created event for a record+connection
// pair, or NotFoundError if this is the first observation.
func (s *InventoryEventStore) FindLatest(ctx context.Context, recordID, connectionID int64, tx ...pgx.Tx) (*InventoryRecordEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		SELECT `+inventoryEventColumns+`
		FROM inventory_record_event
		WHERE inventory_record_id = $1 AND connection_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, recordID, connectionID)

	e, err := scanInventoryEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "inventory_record_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("find latest inventory record event: %w", err)
	}
	return e, nil
}

func (s *InventoryEventStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*InventoryRecordEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+inventoryEventColumns+` FROM inventory_record_event WHERE uuid = $1`, id)
	e, err := scanInventoryEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "inventory_record_event"}
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory record event by uuid: %w", err)
	}
	return e, nil
}

func (s *InventoryEventStore) Create(ctx context.Context, recordID, connectionID int64, f InventoryEventFields, tx ...pgx.Tx) (*InventoryRecordEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO inventory_record_event (
			inventory_record_id, connection_id, original_record_body, price, currency, name, description, attributes, qty, external_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+inventoryEventColumns,
		recordID, connectionID, f.OriginalRecordBody, f.Price, f.Currency, f.Name, f.Description, f.Attributes, f.Qty, f.ExternalCode,
	)

	e, err := scanInventoryEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create inventory record event: %w", err)
	}
	return e, nil
}

// Update applies a partial patch to an existing event: only non-nil fields
// on f are written, including OriginalRecordBody — a poll cycle that only
// re-confirms a subset of fields (e.g. a price-only delta) must not wipe
// out previously recorded values for the fields it didn't observe this
// time.
func (s *InventoryEventStore) Update(ctx context.Context, id int64, f InventoryEventFields, tx ...pgx.Tx) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := pick(s.pool, tx).Exec(ctx, `
		UPDATE inventory_record_event SET
			original_record_body = COALESCE($2, original_record_body),
			price = COALESCE($3, price),
			currency = COALESCE($4, currency),
			name = COALESCE($5, name),
			description = COALESCE($6, description),
			attributes = COALESCE($7, attributes),
			qty = COALESCE($8, qty),
			external_code = COALESCE($9, external_code),
			updated_at = now()
		WHERE id = $1
	`, id, f.OriginalRecordBody, f.Price, f.Currency, f.Name, f.Description, f.Attributes, f.Qty, f.ExternalCode)
	if err != nil {
		return fmt.Errorf("update inventory record event: %w", err)
	}
	return nil
}

// UpdateByUUID resolves id by uuid, then delegates to Update.
func (s *InventoryEventStore) UpdateByUUID(ctx context.Context, id uuid.UUID, f InventoryEventFields, tx ...pgx.Tx) error {
	e, err := s.GetByUUID(ctx, id, tx...)
	if err != nil {
		return err
	}
	return s.Update(ctx, e.ID, f, tx...)
}

// List returns a filtered, paginated view over inventory_record_event,
// newest first. page is 1-indexed; page values below 1 are coerced up to 1.
func (s *InventoryEventStore) List(ctx context.Context, page, perPage int64, filter InventoryEventFilter, tx ...pgx.Tx) (PageResult[InventoryRecordEvent], error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	page = normalizePage(page)
	q := pick(s.pool, tx)

	var where []string
	var args []any
	if filter.InventoryRecordID != nil {
		args = append(args, *filter.InventoryRecordID)
		where = append(where, fmt.Sprintf("inventory_record_id = $%d", len(args)))
	}
	if filter.ConnectionID != nil {
		args = append(args, *filter.ConnectionID)
		where = append(where, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM inventory_record_event `+whereClause, args...).Scan(&total); err != nil {
		return PageResult[InventoryRecordEvent]{}, fmt.Errorf("count inventory record events: %w", err)
	}

	limitArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM inventory_record_event %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, inventoryEventColumns, whereClause, len(limitArgs)-1, len(limitArgs)), limitArgs...)
	if err != nil {
		return PageResult[InventoryRecordEvent]{}, fmt.Errorf("list inventory record events: %w", err)
	}
	defer rows.Close()

	var items []InventoryRecordEvent
	for rows.Next() {
		e, err := scanInventoryEvent(rows)
		if err != nil {
			return PageResult[InventoryRecordEvent]{}, fmt.Errorf("scan inventory record event: %w", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return PageResult[InventoryRecordEvent]{}, err
	}

	return PageResult[InventoryRecordEvent]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: computeTotalPages(total, perPage),
	}, nil
}
