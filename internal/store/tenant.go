package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
)

// TenantStore is the repository for the tenant table.
type TenantStore struct {
	pool *pgxpool.Pool
}

func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

// TenantFilter narrows TenantStore.List. A nil field means "don't filter on
// this column"; DisplayName matches as a case-insensitive substring.
type TenantFilter struct {
	Status      *TenantStatus
	DisplayName *string
}

// UpdateTenant is the partial-patch payload for TenantStore.UpdateByUUID —
// only non-nil fields are written.
type UpdateTenant struct {
	DisplayName *string
	Status      *TenantStatus
}

const tenantColumns = `id, uuid, display_name, tenant_id, status, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var displayName sql.NullString
	if err := row.Scan(&t.ID, &t.UUID, &displayName, &t.TenantID, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if displayName.Valid {
		t.DisplayName = &displayName.String
	}
	return &t, nil
}

// Generate produces a public tenant identifier in the "TN_"+32hex shape used
// across the system.
func (s *TenantStore) Generate() string {
	return "TN_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (s *TenantStore) Create(ctx context.Context, displayName *string, tx ...pgx.Tx) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	tenantID := s.Generate()
	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO tenant (display_name, tenant_id)
		VALUES ($1, $2)
		RETURNING `+tenantColumns, displayName, tenantID)

	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tenant"}
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant WHERE uuid = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tenant"}
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by uuid: %w", err)
	}
	return t, nil
}

func (s *TenantStore) GetByTenantID(ctx context.Context, tenantID string, tx ...pgx.Tx) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant WHERE tenant_id = $1`, tenantID)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tenant"}
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by tenant_id: %w", err)
	}
	return t, nil
}

// UpdateByUUID applies a partial patch: only non-nil fields on patch are
// written, updated_at is always refreshed.
func (s *TenantStore) UpdateByUUID(ctx context.Context, id uuid.UUID, patch UpdateTenant, tx ...pgx.Tx) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE tenant SET
			display_name = COALESCE($2, display_name),
			status = COALESCE($3, status),
			updated_at = now()
		WHERE uuid = $1
		RETURNING `+tenantColumns, id, patch.DisplayName, patch.Status)

	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tenant"}
	}
	if err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return t, nil
}

// SoftDeleteByUUID marks a tenant Removed in place. Tenants are never hard
// deleted — every ERP connection, credential, and inventory row beneath a
// tenant keys on its integer id and must remain addressable for audit.
func (s *TenantStore) SoftDeleteByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*Tenant, error) {
	removed := TenantStatusRemoved
	return s.UpdateByUUID(ctx, id, UpdateTenant{Status: &removed}, tx...)
}

// IsActive reports whether a tenant is active. Provisioning
// (qbdprovision.GenerateQWC) does not call it and accepts removed tenants.
func (s *TenantStore) IsActive(ctx context.Context, tenantID string) (bool, error) {
	t, err := s.GetByTenantID(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return t.Status == TenantStatusActive, nil
}

// List returns a filtered, paginated view over tenant. page is 1-indexed;
// page values below 1 are coerced up to 1.
func (s *TenantStore) List(ctx context.Context, page, perPage int64, filter TenantFilter, tx ...pgx.Tx) (PageResult[Tenant], error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	page = normalizePage(page)
	q := pick(s.pool, tx)

	var where []string
	var args []any
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DisplayName != nil {
		args = append(args, "%"+*filter.DisplayName+"%")
		where = append(where, fmt.Sprintf("display_name ILIKE $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM tenant `+whereClause, args...).Scan(&total); err != nil {
		return PageResult[Tenant]{}, fmt.Errorf("count tenants: %w", err)
	}

	limitArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tenant %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, tenantColumns, whereClause, len(limitArgs)-1, len(limitArgs)), limitArgs...)
	if err != nil {
		return PageResult[Tenant]{}, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var items []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return PageResult[Tenant]{}, fmt.Errorf("scan tenant: %w", err)
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return PageResult[Tenant]{}, err
	}

	return PageResult[Tenant]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: computeTotalPages(total, perPage),
	}, nil
}
