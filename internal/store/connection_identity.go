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

type ConnectionIdentityStore struct {
	pool *pgxpool.Pool
}

func NewConnectionIdentityStore(pool *pgxpool.Pool) *ConnectionIdentityStore {
	return &ConnectionIdentityStore{pool: pool}
}

type CreateConnectionIdentity struct {
	TenantID            int64
	ErpProvider         ErpProvider
	ErpType             ErpProviderType
	ErpAuthType         ErpProviderAuthType
	DisplayName         *string
	Environment         ErpEnvironment
	SecretStorageRef    *string
	SecretVersion       *string
	Scopes              []string
	ProviderRealmID     *string
	ProviderTenantID    *string
	CompanyFileIdentity *string
	CompanyFilePath     *string
	CompanyFileID       *string
	SystemVersion       *string
	WebConnectorAppName *string
}

// UpdateConnectionIdentity is the partial-patch payload for
// ConnectionIdentityStore.UpdateByUUID — only non-nil fields are written.
type UpdateConnectionIdentity struct {
	DisplayName         *string
	Status              *ErpConnectionStatus
	AuthStatus          *ErpConnectionAuthStatus
	IsEnabled           *bool
	SyncEnabledPush     *bool
	SyncEnabledPull     *bool
	SecretStorageRef    *string
	SecretVersion       *string
	Scopes              []string
	ProviderRealmID     *string
	ProviderTenantID    *string
	CompanyFileIdentity *string
	CompanyFilePath     *string
	CompanyFileID       *string
	SystemVersion       *string
	WebConnectorAppName *string
}

// ConnectionIdentityFilter narrows ConnectionIdentityStore.List.
type ConnectionIdentityFilter struct {
	TenantID    *int64
	ErpProvider *ErpProvider
	ErpType     *ErpProviderType
	Status      *ErpConnectionStatus
}

const connectionIdentityColumns = `id, uuid, tenant_id, erp_provider, erp_type, erp_auth_type, display_name,
	environment, status, auth_status, is_enabled, last_success_at, last_error_code,
	last_error_message, error_at, sync_enabled_push, sync_enabled_pull,
	secret_storage_ref, secret_version, scopes, provider_realm_id, provider_tenant_id,
	company_file_identity, company_file_path, company_file_id, system_version,
	web_connector_app_name, created_at, updated_at`

func scanConnectionIdentity(row pgx.Row) (*ConnectionIdentity, error) {
	var c ConnectionIdentity
	err := row.Scan(
		&c.ID, &c.UUID, &c.TenantID, &c.ErpProvider, &c.ErpType, &c.ErpAuthType, &c.DisplayName,
		&c.Environment, &c.Status, &c.AuthStatus, &c.IsEnabled, &c.LastSuccessAt, &c.LastErrorCode,
		&c.LastErrorMessage, &c.ErrorAt, &c.SyncEnabledPush, &c.SyncEnabledPull,
		&c.SecretStorageRef, &c.SecretVersion, &c.Scopes, &c.ProviderRealmID, &c.ProviderTenantID,
		&c.CompanyFileIdentity, &c.CompanyFilePath, &c.CompanyFileID, &c.SystemVersion,
		&c.WebConnectorAppName, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConnectionIdentityStore) Create(ctx context.Context, in CreateConnectionIdentity, tx ...pgx.Tx) (*ConnectionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO connection_identity (
			tenant_id, erp_provider, erp_type, erp_auth_type, display_name, environment,
			secret_storage_ref, secret_version, scopes, provider_realm_id, provider_tenant_id,
			company_file_identity, company_file_path, company_file_id, system_version,
			web_connector_app_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+connectionIdentityColumns,
		in.TenantID, in.ErpProvider, in.ErpType, in.ErpAuthType, in.DisplayName, in.Environment,
		in.SecretStorageRef, in.SecretVersion, in.Scopes, in.ProviderRealmID, in.ProviderTenantID,
		in.CompanyFileIdentity, in.CompanyFilePath, in.CompanyFileID, in.SystemVersion,
		in.WebConnectorAppName,
	)

	c, err := scanConnectionIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("create connection identity: %w", err)
	}
	return c, nil
}

// ListQBDByTenant returns every QuickBooks Desktop connection identity for a
// tenant, used by provisioning's idempotent get-or-create flow.
func (s *ConnectionIdentityStore) ListQBDByTenant(ctx context.Context, tenantID int64) ([]ConnectionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+connectionIdentityColumns+`
		FROM connection_identity
		WHERE tenant_id = $1 AND erp_provider = 'quickbooks' AND erp_type = 'desktop'
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list qbd connections: %w", err)
	}
	defer rows.Close()

	var out []ConnectionIdentity
	for rows.Next() {
		c, err := scanConnectionIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection identity: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *ConnectionIdentityStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*ConnectionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+connectionIdentityColumns+` FROM connection_identity WHERE id = $1`, id)
	c, err := scanConnectionIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_identity"}
	}
	if err != nil {
		return nil, fmt.Errorf("get connection identity: %w", err)
	}
	return c, nil
}

func (s *ConnectionIdentityStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*ConnectionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+connectionIdentityColumns+` FROM connection_identity WHERE uuid = $1`, id)
	c, err := scanConnectionIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_identity"}
	}
	if err != nil {
		return nil, fmt.Errorf("get connection identity by uuid: %w", err)
	}
	return c, nil
}

// UpdateByUUID applies a partial patch: only non-nil fields on patch are
// written, updated_at is always refreshed.
func (s *ConnectionIdentityStore) UpdateByUUID(ctx context.Context, id uuid.UUID, patch UpdateConnectionIdentity, tx ...pgx.Tx) (*ConnectionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE connection_identity SET
			display_name = COALESCE($2, display_name),
			status = COALESCE($3, status),
			auth_status = COALESCE($4, auth_status),
			is_enabled = COALESCE($5, is_enabled),
			sync_enabled_push = COALESCE($6, sync_enabled_push),
			sync_enabled_pull = COALESCE($7, sync_enabled_pull),
			secret_storage_ref = COALESCE($8, secret_storage_ref),
			secret_version = COALESCE($9, secret_version),
			scopes = COALESCE($10, scopes),
			provider_realm_id = COALESCE($11, provider_realm_id),
			provider_tenant_id = COALESCE($12, provider_tenant_id),
			company_file_identity = COALESCE($13, company_file_identity),
			company_file_path = COALESCE($14, company_file_path),
			company_file_id = COALESCE($15, company_file_id),
			system_version = COALESCE($16, system_version),
			web_connector_app_name = COALESCE($17, web_connector_app_name),
			updated_at = now()
		WHERE uuid = $1
		RETURNING `+connectionIdentityColumns,
		id, patch.DisplayName, patch.Status, patch.AuthStatus, patch.IsEnabled,
		patch.SyncEnabledPush, patch.SyncEnabledPull, patch.SecretStorageRef, patch.SecretVersion,
		patch.Scopes, patch.ProviderRealmID, patch.ProviderTenantID, patch.CompanyFileIdentity,
		patch.CompanyFilePath, patch.CompanyFileID, patch.SystemVersion, patch.WebConnectorAppName,
	)

	c, err := scanConnectionIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "connection_identity"}
	}
	if err != nil {
		return nil, fmt.Errorf("update connection identity: %w", err)
	}
	return c, nil
}

// SoftDeleteByUUID marks a connection Removed in place rather than deleting
// its row, preserving the audit trail of inventory events it originated.
func (s *ConnectionIdentityStore) SoftDeleteByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*ConnectionIdentity, error) {
	removed := ErpConnectionStatusRemoved
	return s.UpdateByUUID(ctx, id, UpdateConnectionIdentity{Status: &removed}, tx...)
}

// List returns a filtered, paginated view over connection_identity. page is
// 1-indexed; page values below 1 are coerced up to 1.
func (s *ConnectionIdentityStore) List(ctx context.Context, page, perPage int64, filter ConnectionIdentityFilter, tx ...pgx.Tx) (PageResult[ConnectionIdentity], error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	page = normalizePage(page)
	q := pick(s.pool, tx)

	var where []string
	var args []any
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.ErpProvider != nil {
		args = append(args, *filter.ErpProvider)
		where = append(where, fmt.Sprintf("erp_provider = $%d", len(args)))
	}
	if filter.ErpType != nil {
		args = append(args, *filter.ErpType)
		where = append(where, fmt.Sprintf("erp_type = $%d", len(args)))
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
	if err := q.QueryRow(ctx, `SELECT count(*) FROM connection_identity `+whereClause, args...).Scan(&total); err != nil {
		return PageResult[ConnectionIdentity]{}, fmt.Errorf("count connection identities: %w", err)
	}

	limitArgs := append(append([]any{}, args...), perPage, (page-1)*perPage)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM connection_identity %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, connectionIdentityColumns, whereClause, len(limitArgs)-1, len(limitArgs)), limitArgs...)
	if err != nil {
		return PageResult[ConnectionIdentity]{}, fmt.Errorf("list connection identities: %w", err)
	}
	defer rows.Close()

	var items []ConnectionIdentity
	for rows.Next() {
		c, err := scanConnectionIdentity(rows)
		if err != nil {
			return PageResult[ConnectionIdentity]{}, fmt.Errorf("scan connection identity: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return PageResult[ConnectionIdentity]{}, err
	}

	return PageResult[ConnectionIdentity]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: computeTotalPages(total, perPage),
	}, nil
}

// RecordSuccess clears error state and refreshes last_success_at.
func (s *ConnectionIdentityStore) RecordSuccess(ctx context.Context, id int64, tx ...pgx.Tx) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	_, err := pick(s.pool, tx).Exec(ctx, `
		UPDATE connection_identity SET
			last_success_at = now(),
			last_error_code = NULL,
			last_error_message = NULL,
			error_at = NULL,
			auth_status = 'connected',
			updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("record connection success: %w", err)
	}
	return nil
}

// RecordError sets the connection's error-tracking columns.
func (s *ConnectionIdentityStore) RecordError(ctx context.Context, id int64, code, message string, tx ...pgx.Tx) error {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	var code2, msg2 sql.NullString
	if code != "" {
		code2 = sql.NullString{String: code, Valid: true}
	}
	if message != "" {
		msg2 = sql.NullString{String: message, Valid: true}
	}

	_, err := pick(s.pool, tx).Exec(ctx, `
		UPDATE connection_identity SET
			last_error_code = $2,
			last_error_message = $3,
			error_at = now(),
			auth_status = 'error',
			updated_at = now()
		WHERE id = $1
	`, id, code2, msg2)
	if err != nil {
		return fmt.Errorf("record connection error: %w", err)
	}
	return nil
}
