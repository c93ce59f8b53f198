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

type CredentialsStore struct {
	pool *pgxpool.Pool
}

func NewCredentialsStore(pool *pgxpool.Pool) *CredentialsStore {
	return &CredentialsStore{pool: pool}
}

// CreateCredentials is a builder enumerating every optional credential
// channel the canonical schema supports: OAuth access/refresh tokens, an
// OIDC id_token, a username/password pair, a client certificate, a session
// token, and a vendor API token/key pair. A connection only ever populates
// the subset its ErpAuthType uses.
type CreateCredentials struct {
	ConnectionID          int64
	ClientID              *string
	IssuerBaseURL         *string
	TokenType             *ErpConnectionAuthTokenType
	ReauthRequiredReason  *ErpConnectionReauthReason
	ReauthURL             *string
	EncScheme             *string
	EncKeyID              string
	EncVersion            *int32
	EncIV                 []byte
	EncTag                []byte
	AccessToken           *string
	RefreshToken          *string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	IDTokenEnc            *string
	ProviderUserID        *string
	ProviderPassword      *string
	ClientCert            []byte
	PrivateKey            *string
	CertExpiresAt         *time.Time
	SessionToken          *string
	SessionExpiresAt      *time.Time
	APIAccessToken        *string
	APIAccessTokenKey     *string
}

// UpdateCredentials is the partial-patch payload for
// CredentialsStore.UpdateByUUID — only non-nil fields are written.
type UpdateCredentials struct {
	ClientID              *string
	IssuerBaseURL         *string
	TokenType             *ErpConnectionAuthTokenType
	ReauthRequiredReason  *ErpConnectionReauthReason
	ReauthURL             *string
	EncScheme             *string
	EncKeyID              *string
	EncVersion            *int32
	EncIV                 []byte
	EncTag                []byte
	AccessToken           *string
	RefreshToken          *string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	IDTokenEnc            *string
	ProviderUserID        *string
	ProviderPassword      *string
	ClientCert            []byte
	PrivateKey            *string
	CertExpiresAt         *time.Time
	SessionToken          *string
	SessionExpiresAt      *time.Time
	APIAccessToken        *string
	APIAccessTokenKey     *string
}

const credentialsColumns = `id, uuid, connection_id, client_id, issuer_base_url, token_type,
	reauth_required_reason, reauth_url, enc_scheme, enc_key_id, enc_version, enc_iv, enc_tag,
	access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, id_token_enc,
	provider_user_id, provider_password, client_cert, private_key, cert_expires_at,
	session_token, session_expires_at, api_access_token, api_access_token_key,
	created_at, updated_at`

func scanCredentials(row pgx.Row) (*ErpConnectionCredentials, error) {
	var c ErpConnectionCredentials
	err := row.Scan(
		&c.ID, &c.UUID, &c.ConnectionID, &c.ClientID, &c.IssuerBaseURL, &c.TokenType,
		&c.ReauthRequiredReason, &c.ReauthURL, &c.EncScheme, &c.EncKeyID, &c.EncVersion, &c.EncIV, &c.EncTag,
		&c.AccessToken, &c.RefreshToken, &c.AccessTokenExpiresAt, &c.RefreshTokenExpiresAt, &c.IDTokenEnc,
		&c.ProviderUserID, &c.ProviderPassword, &c.ClientCert, &c.PrivateKey, &c.CertExpiresAt,
		&c.SessionToken, &c.SessionExpiresAt, &c.APIAccessToken, &c.APIAccessTokenKey,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CredentialsStore) Create(ctx context.Context, in CreateCredentials, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	encScheme := "kms-envelope-v1"
	if in.EncScheme != nil {
		encScheme = *in.EncScheme
	}
	tokenType := ErpConnectionAuthTokenTypeBearer
	if in.TokenType != nil {
		tokenType = *in.TokenType
	}
	var encVersion int32 = 1
	if in.EncVersion != nil {
		encVersion = *in.EncVersion
	}

	row := pick(s.pool, tx).QueryRow(ctx, `
		INSERT INTO erp_connection_credentials (
			connection_id, client_id, issuer_base_url, token_type, reauth_required_reason, reauth_url,
			enc_scheme, enc_key_id, enc_version, enc_iv, enc_tag,
			access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, id_token_enc,
			provider_user_id, provider_password, client_cert, private_key, cert_expires_at,
			session_token, session_expires_at, api_access_token, api_access_token_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		RETURNING `+credentialsColumns,
		in.ConnectionID, in.ClientID, in.IssuerBaseURL, tokenType, in.ReauthRequiredReason, in.ReauthURL,
		encScheme, in.EncKeyID, encVersion, in.EncIV, in.EncTag,
		in.AccessToken, in.RefreshToken, in.AccessTokenExpiresAt, in.RefreshTokenExpiresAt, in.IDTokenEnc,
		in.ProviderUserID, in.ProviderPassword, in.ClientCert, in.PrivateKey, in.CertExpiresAt,
		in.SessionToken, in.SessionExpiresAt, in.APIAccessToken, in.APIAccessTokenKey,
	)

	c, err := scanCredentials(row)
	if err != nil {
		return nil, fmt.Errorf("create credentials: %w", err)
	}
	return c, nil
}

func (s *CredentialsStore) GetByID(ctx context.Context, id int64, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+credentialsColumns+` FROM erp_connection_credentials WHERE id = $1`, id)
	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_credentials"}
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials by id: %w", err)
	}
	return c, nil
}

func (s *CredentialsStore) GetByUUID(ctx context.Context, id uuid.UUID, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+credentialsColumns+` FROM erp_connection_credentials WHERE uuid = $1`, id)
	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_credentials"}
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials by uuid: %w", err)
	}
	return c, nil
}

func (s *CredentialsStore) GetByConnectionID(ctx context.Context, connectionID int64, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+credentialsColumns+` FROM erp_connection_credentials WHERE connection_id = $1`, connectionID)
	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_credentials"}
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials by connection: %w", err)
	}
	return c, nil
}

// GetByProviderUserID finds the credential row whose provider_user_id
// matches username. Used by the poll engine's Basic-style auth check.
func (s *CredentialsStore) GetByProviderUserID(ctx context.Context, username string, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `SELECT `+credentialsColumns+` FROM erp_connection_credentials WHERE provider_user_id = $1`, username)
	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_credentials"}
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials by provider_user_id: %w", err)
	}
	return c, nil
}

// UpdateByUUID applies a partial patch: only non-nil fields on patch are
// written, updated_at is always refreshed.
func (s *CredentialsStore) UpdateByUUID(ctx context.Context, id uuid.UUID, patch UpdateCredentials, tx ...pgx.Tx) (*ErpConnectionCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, db.QueryTimeout)
	defer cancel()

	row := pick(s.pool, tx).QueryRow(ctx, `
		UPDATE erp_connection_credentials SET
			client_id = COALESCE($2, client_id),
			issuer_base_url = COALESCE($3, issuer_base_url),
			token_type = COALESCE($4, token_type),
			reauth_required_reason = COALESCE($5, reauth_required_reason),
			reauth_url = COALESCE($6, reauth_url),
			enc_scheme = COALESCE($7, enc_scheme),
			enc_key_id = COALESCE($8, enc_key_id),
			enc_version = COALESCE($9, enc_version),
			enc_iv = COALESCE($10, enc_iv),
			enc_tag = COALESCE($11, enc_tag),
			access_token = COALESCE($12, access_token),
			refresh_token = COALESCE($13, refresh_token),
			access_token_expires_at = COALESCE($14, access_token_expires_at),
			refresh_token_expires_at = COALESCE($15, refresh_token_expires_at),
			id_token_enc = COALESCE($16, id_token_enc),
			provider_user_id = COALESCE($17, provider_user_id),
			provider_password = COALESCE($18, provider_password),
			client_cert = COALESCE($19, client_cert),
			private_key = COALESCE($20, private_key),
			cert_expires_at = COALESCE($21, cert_expires_at),
			session_token = COALESCE($22, session_token),
			session_expires_at = COALESCE($23, session_expires_at),
			api_access_token = COALESCE($24, api_access_token),
			api_access_token_key = COALESCE($25, api_access_token_key),
			updated_at = now()
		WHERE uuid = $1
		RETURNING `+credentialsColumns,
		id, patch.ClientID, patch.IssuerBaseURL, patch.TokenType, patch.ReauthRequiredReason, patch.ReauthURL,
		patch.EncScheme, patch.EncKeyID, patch.EncVersion, patch.EncIV, patch.EncTag,
		patch.AccessToken, patch.RefreshToken, patch.AccessTokenExpiresAt, patch.RefreshTokenExpiresAt, patch.IDTokenEnc,
		patch.ProviderUserID, patch.ProviderPassword, patch.ClientCert, patch.PrivateKey, patch.CertExpiresAt,
		patch.SessionToken, patch.SessionExpiresAt, patch.APIAccessToken, patch.APIAccessTokenKey,
	)

	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "erp_connection_credentials"}
	}
	if err != nil {
		return nil, fmt.Errorf("update credentials: %w", err)
	}
	return c, nil
}
