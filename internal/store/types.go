// Package store holds the raw-SQL repositories for every entity in the
// canonical schema: one hand-written repository per entity over
// *pgxpool.Pool rather than an ORM.
package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotFoundError is returned by Get-style repository methods when no row matches.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + ": not found" }

// Querier is the subset of *pgxpool.Pool and pgx.Tx every repository method
// runs against. The generic repository methods (Get*/Create/Update*/List)
// accept a trailing, optional transaction handle (tx ...pgx.Tx); pick
// resolves it to the ambient pool when the caller doesn't supply one. The
// poll-engine helpers (the recurring sync-event helpers, SetCursor,
// EnsureByConnectionID, ConnectionRunStore.MarkError, ListQBDByTenant,
// TenantStore.IsActive) take no transaction handle and always run on the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pick(pool *pgxpool.Pool, tx []pgx.Tx) Querier {
	if len(tx) > 0 && tx[0] != nil {
		return tx[0]
	}
	return pool
}

// PageResult is the generic paginated-listing shape every repository's List
// method returns.
type PageResult[T any] struct {
	Items      []T
	Total      int64
	Page       int64
	PerPage    int64
	TotalPages int64
}

func computeTotalPages(total, perPage int64) int64 {
	if perPage <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(total) / float64(perPage)))
}

// normalizePage coerces a zero or negative page number up to 1, the way the
// fetch offset (page-1) must never go negative.
func normalizePage(page int64) int64 {
	if page < 1 {
		return 1
	}
	return page
}

type TenantStatus string

const (
	TenantStatusActive  TenantStatus = "active"
	TenantStatusRemoved TenantStatus = "removed"
)

type ErpProvider string

const (
	ErpProviderQuickbooks ErpProvider = "quickbooks"
	ErpProviderDmsi       ErpProvider = "dmsi"
	ErpProviderSap        ErpProvider = "sap"
	ErpProviderSalesforce ErpProvider = "salesforce"
)

type ErpProviderType string

const (
	ErpProviderTypeDesktop      ErpProviderType = "desktop"
	ErpProviderTypeAPI          ErpProviderType = "api"
	ErpProviderTypeEDI          ErpProviderType = "edi"
	ErpProviderTypeIDoc         ErpProviderType = "idoc"
	ErpProviderTypeWebconnector ErpProviderType = "webconnector"
)

type ErpProviderAuthType string

const (
	ErpAuthTypeOAuth            ErpProviderAuthType = "oauth"
	ErpAuthTypeOAuth2           ErpProviderAuthType = "oauth2"
	ErpAuthTypeUsernamePassword ErpProviderAuthType = "username_password"
	ErpAuthTypeCertificate      ErpProviderAuthType = "certificate"
	ErpAuthTypeAPIToken         ErpProviderAuthType = "api_token"
	ErpAuthTypeSessionToken     ErpProviderAuthType = "session_token"
)

type ErpEnvironment string

const (
	ErpEnvironmentProduction ErpEnvironment = "production"
	ErpEnvironmentSandbox    ErpEnvironment = "sandbox"
)

type ErpConnectionStatus string

const (
	ErpConnectionStatusActive  ErpConnectionStatus = "active"
	ErpConnectionStatusRemoved ErpConnectionStatus = "removed"
)

type ErpConnectionAuthStatus string

const (
	ErpConnectionAuthStatusConnected   ErpConnectionAuthStatus = "connected"
	ErpConnectionAuthStatusNeedsReauth ErpConnectionAuthStatus = "needs_reauth"
	ErpConnectionAuthStatusRevoked     ErpConnectionAuthStatus = "revoked"
	ErpConnectionAuthStatusError       ErpConnectionAuthStatus = "error"
)

type ConnectionRunStatus string

const (
	ConnectionRunStatusSuccess ConnectionRunStatus = "success"
	ConnectionRunStatusError   ConnectionRunStatus = "error"
)

type ConnectionRunType string

const (
	ConnectionRunTypePoll ConnectionRunType = "poll"
)

type ErpConnectionAuthTokenType string

const (
	ErpConnectionAuthTokenTypeBearer ErpConnectionAuthTokenType = "bearer"
)

type ErpConnectionReauthReason string

const (
	ErpConnectionReauthReasonRefreshExpired ErpConnectionReauthReason = "refresh_expired"
	ErpConnectionReauthReasonRevoked        ErpConnectionReauthReason = "revoked"
	ErpConnectionReauthReasonInvalidGrant   ErpConnectionReauthReason = "invalid_grant"
	ErpConnectionReauthReasonScopesChanged  ErpConnectionReauthReason = "scopes_changed"
)

type InventoryCurrency string

const (
	InventoryCurrencyUSD InventoryCurrency = "usd"
)

type InventorySystemIDKey string

const (
	SystemIDKeyQbd  InventorySystemIDKey = "qbd"
	SystemIDKeyQbo  InventorySystemIDKey = "qbo"
	SystemIDKeySapo InventorySystemIDKey = "sapo"
)

type SyncEventDirection string

const (
	SyncEventDirectionPushToExternal   SyncEventDirection = "push_to_external"
	SyncEventDirectionPullFromExternal SyncEventDirection = "pull_from_external"
)

type SyncEventMethod string

const (
	SyncEventMethodList   SyncEventMethod = "list"
	SyncEventMethodGet    SyncEventMethod = "get"
	SyncEventMethodCreate SyncEventMethod = "create"
	SyncEventMethodUpdate SyncEventMethod = "update"
	SyncEventMethodDelete SyncEventMethod = "delete"
)

type SyncEventCategory string

const (
	SyncEventCategoryInventory SyncEventCategory = "inventory"
	SyncEventCategoryOrder     SyncEventCategory = "order"
	SyncEventCategoryCustomer  SyncEventCategory = "customer"
	SyncEventCategoryOther     SyncEventCategory = "other"
)

type SyncEventStatus string

const (
	SyncEventStatusPending    SyncEventStatus = "pending"
	SyncEventStatusInProgress SyncEventStatus = "in_progress"
	SyncEventStatusSuccess    SyncEventStatus = "success"
	SyncEventStatusError      SyncEventStatus = "error"
)

// Tenant is the top-level multi-tenant boundary.
type Tenant struct {
	ID          int64
	UUID        uuid.UUID
	DisplayName *string
	TenantID    string
	Status      TenantStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConnectionIdentity is one configured ERP connection for a tenant.
type ConnectionIdentity struct {
	ID                  int64
	UUID                uuid.UUID
	TenantID            int64
	ErpProvider         ErpProvider
	ErpType             ErpProviderType
	ErpAuthType         ErpProviderAuthType
	DisplayName         *string
	Environment         ErpEnvironment
	Status              ErpConnectionStatus
	AuthStatus          ErpConnectionAuthStatus
	IsEnabled           bool
	LastSuccessAt       *time.Time
	LastErrorCode       *string
	LastErrorMessage    *string
	ErrorAt             *time.Time
	SyncEnabledPush     bool
	SyncEnabledPull     bool
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
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ErpConnectionCredentials stores auth material for a connection. Every
// column beyond the ones used by the QBD flow exists for parity with the
// canonical schema and other (not-yet-implemented) ERP providers: OAuth
// tokens for API-based connectors, a client certificate for EDI/IDoc
// transports, a session token for cookie-style portals, and a vendor API
// token/key pair for simple bearer integrations.
type ErpConnectionCredentials struct {
	ID                     int64
	UUID                   uuid.UUID
	ConnectionID           int64
	ClientID               *string
	IssuerBaseURL          *string
	TokenType              ErpConnectionAuthTokenType
	ReauthRequiredReason   *ErpConnectionReauthReason
	ReauthURL              *string
	EncScheme              string
	EncKeyID               string
	EncVersion             int
	EncIV                  []byte
	EncTag                 []byte
	AccessToken            *string
	RefreshToken           *string
	AccessTokenExpiresAt   *time.Time
	RefreshTokenExpiresAt  *time.Time
	IDTokenEnc             *string
	ProviderUserID         *string
	ProviderPassword       *string
	ClientCert             []byte
	PrivateKey             *string
	CertExpiresAt          *time.Time
	SessionToken           *string
	SessionExpiresAt       *time.Time
	APIAccessToken         *string
	APIAccessTokenKey      *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ErpConnectionSyncState holds the cursor, the (reserved, unused by the poll
// engine) advisory-lock fields, and per-connection rate-limit telemetry
// reported back by the upstream ERP API.
type ErpConnectionSyncState struct {
	ID                     int64
	UUID                   uuid.UUID
	ConnectionID           int64
	SyncCursor             []byte // raw JSON, nil when absent
	SyncLockOwner          *string
	SyncLockUntil          *time.Time
	RateLimitRemaining     *int32
	RateLimit              *int32
	RateLimitResetAt       *time.Time
	RateLimitBackoffUntil  *time.Time
	RateLimitWindowSeconds *int32
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ConnectionRun is one poll cycle against a connection.
type ConnectionRun struct {
	ID           int64
	UUID         uuid.UUID
	ConnectionID int64
	Status       ConnectionRunStatus
	ErrorMessage *string
	RunType      ConnectionRunType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InventoryRecord is the canonical, deduplicated inventory item.
type InventoryRecord struct {
	ID                      int64
	UUID                    uuid.UUID
	TenantID                int64
	OriginatingConnectionID int64
	SystemIDKey             InventorySystemIDKey
	SystemID                string
	OriginalRecordBody      []byte
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// InventoryRecordEvent is a per-connection observation of an InventoryRecord.
type InventoryRecordEvent struct {
	ID                 int64
	UUID               uuid.UUID
	InventoryRecordID  int64
	ConnectionID       int64
	OriginalRecordBody []byte
	Price              *int32
	Currency           *InventoryCurrency
	Name               *string
	Description        *string
	Attributes         *string // opaque newline-joined pass-through
	Qty                *int32
	ExternalCode       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SyncEvent tracks the lifecycle of one unit of sync work.
type SyncEvent struct {
	ID                     int64
	UUID                   uuid.UUID
	OriginalRecordBody     []byte
	Details                []byte
	EventDirection         SyncEventDirection
	InventoryRecordEventID *int64
	ConnectionSyncStateID  *int64
	ConnectionRunID        *int64
	SyncEventMethod        SyncEventMethod
	SyncEventCategory      SyncEventCategory
	Attempts               int
	Status                 SyncEventStatus
	LastError              []byte
	LastErroredDate        *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
