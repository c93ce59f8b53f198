// Package schema owns the canonical relational schema for the sync gateway.
// DDL is applied idempotently at startup with CREATE TYPE/TABLE IF NOT EXISTS
// statements instead of a versioned migration framework.
package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// statements run in order; later statements may depend on enums/tables
// created by earlier ones.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`DO $$ BEGIN
		CREATE TYPE tenant_status AS ENUM ('active', 'removed');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_provider AS ENUM ('quickbooks', 'dmsi', 'sap', 'salesforce');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_provider_type AS ENUM ('desktop', 'api', 'edi', 'idoc', 'webconnector');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_provider_auth_type AS ENUM ('oauth', 'oauth2', 'username_password', 'certificate', 'api_token', 'session_token');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_environment AS ENUM ('production', 'sandbox');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_connection_status AS ENUM ('removed', 'active');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_connection_auth_status AS ENUM ('connected', 'needs_reauth', 'revoked', 'error');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_connection_auth_token_type AS ENUM ('bearer');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE erp_connection_reauth_reason AS ENUM ('refresh_expired', 'revoked', 'invalid_grant', 'scopes_changed');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE connection_run_status AS ENUM ('success', 'error');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE connection_run_type AS ENUM ('poll');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE inventory_currency AS ENUM ('usd');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE inventory_system_id_key AS ENUM ('qbd', 'qbo', 'sapo');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE sync_event_direction AS ENUM ('push_to_external', 'pull_from_external');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE sync_event_method AS ENUM ('list', 'get', 'create', 'update', 'delete');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE sync_event_category AS ENUM ('inventory', 'order', 'customer', 'other');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`DO $$ BEGIN
		CREATE TYPE sync_event_status AS ENUM ('pending', 'in_progress', 'success', 'error');
	EXCEPTION WHEN duplicate_object THEN null; END $$`,

	`CREATE TABLE IF NOT EXISTS tenant (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		display_name TEXT,
		tenant_id TEXT NOT NULL UNIQUE,
		status tenant_status NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS tenant_status_idx ON tenant (status)`,

	`CREATE TABLE IF NOT EXISTS connection_identity (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		tenant_id BIGINT NOT NULL REFERENCES tenant(id) ON DELETE CASCADE ON UPDATE CASCADE,
		erp_provider erp_provider NOT NULL,
		erp_type erp_provider_type NOT NULL,
		erp_auth_type erp_provider_auth_type NOT NULL,
		display_name TEXT,
		environment erp_environment NOT NULL DEFAULT 'production',
		status erp_connection_status NOT NULL DEFAULT 'active',
		auth_status erp_connection_auth_status NOT NULL DEFAULT 'connected',
		is_enabled BOOLEAN NOT NULL DEFAULT true,
		last_success_at TIMESTAMPTZ,
		last_error_code VARCHAR(255),
		last_error_message VARCHAR(1024),
		error_at TIMESTAMPTZ,
		sync_enabled_push BOOLEAN NOT NULL DEFAULT true,
		sync_enabled_pull BOOLEAN NOT NULL DEFAULT true,
		secret_storage_ref TEXT,
		secret_version VARCHAR(255),
		scopes TEXT[],
		provider_realm_id VARCHAR(255),
		provider_tenant_id VARCHAR(255),
		company_file_identity TEXT,
		company_file_path TEXT,
		company_file_id VARCHAR(255),
		system_version VARCHAR(255),
		web_connector_app_name VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS connection_identity_tenant_id_idx ON connection_identity (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS connection_identity_status_idx ON connection_identity (status)`,
	`CREATE INDEX IF NOT EXISTS connection_identity_auth_status_idx ON connection_identity (auth_status)`,
	`CREATE INDEX IF NOT EXISTS connection_identity_erp_provider_idx ON connection_identity (erp_provider)`,

	`CREATE TABLE IF NOT EXISTS erp_connection_credentials (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		connection_id BIGINT NOT NULL UNIQUE REFERENCES connection_identity(id) ON DELETE CASCADE ON UPDATE CASCADE,
		client_id TEXT,
		issuer_base_url TEXT,
		token_type erp_connection_auth_token_type NOT NULL DEFAULT 'bearer',
		reauth_required_reason erp_connection_reauth_reason,
		reauth_url TEXT,
		enc_scheme TEXT NOT NULL DEFAULT 'kms-envelope-v1',
		enc_key_id TEXT NOT NULL,
		enc_version INT NOT NULL DEFAULT 1,
		enc_iv BYTEA,
		enc_tag BYTEA,
		access_token TEXT,
		refresh_token TEXT,
		access_token_expires_at TIMESTAMPTZ,
		refresh_token_expires_at TIMESTAMPTZ,
		id_token_enc TEXT,
		provider_user_id TEXT,
		provider_password TEXT,
		client_cert BYTEA,
		private_key TEXT,
		cert_expires_at TIMESTAMPTZ,
		session_token TEXT,
		session_expires_at TIMESTAMPTZ,
		api_access_token TEXT,
		api_access_token_key TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT credentials_not_all_null CHECK (
			access_token IS NOT NULL OR
			refresh_token IS NOT NULL OR
			provider_password IS NOT NULL OR
			private_key IS NOT NULL OR
			session_token IS NOT NULL OR
			api_access_token IS NOT NULL
		)
	)`,

	`CREATE TABLE IF NOT EXISTS erp_connection_sync_state (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		connection_id BIGINT NOT NULL UNIQUE REFERENCES connection_identity(id) ON DELETE CASCADE ON UPDATE CASCADE,
		sync_cursor JSONB,
		sync_lock_owner TEXT,
		sync_lock_until TIMESTAMPTZ,
		rate_limit_remaining INT,
		rate_limit INT,
		rate_limit_reset_at TIMESTAMPTZ,
		rate_limit_backoff_until TIMESTAMPTZ,
		rate_limit_window_seconds INT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS connection_run (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		connection_id BIGINT NOT NULL REFERENCES connection_identity(id) ON DELETE CASCADE ON UPDATE CASCADE,
		status connection_run_status NOT NULL DEFAULT 'success',
		error_message TEXT,
		run_type connection_run_type NOT NULL DEFAULT 'poll',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS connection_run_connection_id_idx ON connection_run (connection_id)`,

	`CREATE TABLE IF NOT EXISTS inventory_record (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		tenant_id BIGINT NOT NULL REFERENCES tenant(id) ON DELETE CASCADE ON UPDATE CASCADE,
		originating_connection_id BIGINT NOT NULL REFERENCES connection_identity(id) ON DELETE CASCADE ON UPDATE CASCADE,
		system_id_key inventory_system_id_key NOT NULL,
		system_id VARCHAR(255) NOT NULL,
		original_record_body JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_record_tenant_id_idx ON inventory_record (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS inventory_record_lookup_idx ON inventory_record (originating_connection_id, system_id_key, system_id)`,

	`CREATE TABLE IF NOT EXISTS inventory_record_event (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		inventory_record_id BIGINT NOT NULL REFERENCES inventory_record(id) ON DELETE CASCADE ON UPDATE CASCADE,
		connection_id BIGINT NOT NULL REFERENCES connection_identity(id) ON DELETE CASCADE ON UPDATE CASCADE,
		original_record_body JSONB,
		price INT,
		currency inventory_currency,
		name TEXT,
		description TEXT,
		attributes TEXT,
		qty INT,
		external_code TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_record_event_record_id_idx ON inventory_record_event (inventory_record_id)`,
	`CREATE INDEX IF NOT EXISTS inventory_record_event_connection_id_idx ON inventory_record_event (connection_id)`,

	`CREATE TABLE IF NOT EXISTS sync_event (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		original_record_body JSONB,
		details JSONB,
		event_direction sync_event_direction NOT NULL,
		inventory_record_event_id BIGINT REFERENCES inventory_record_event(id) ON DELETE SET NULL,
		connection_sync_state_id BIGINT REFERENCES erp_connection_sync_state(id) ON DELETE SET NULL,
		connection_run_id BIGINT REFERENCES connection_run(id) ON DELETE SET NULL ON UPDATE CASCADE,
		sync_event_method sync_event_method NOT NULL,
		sync_event_category sync_event_category NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		status sync_event_status NOT NULL DEFAULT 'pending',
		last_error JSONB,
		last_errored_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sync_event_inventory_record_event_id_idx ON sync_event (inventory_record_event_id)`,
	`CREATE INDEX IF NOT EXISTS sync_event_connection_sync_state_id_idx ON sync_event (connection_sync_state_id)`,
	`CREATE INDEX IF NOT EXISTS sync_event_connection_run_id_idx ON sync_event (connection_run_id)`,
	`CREATE INDEX IF NOT EXISTS sync_event_status_idx ON sync_event (status)`,
}

// Apply runs every DDL statement, in order, against pool. Safe to call on
// every process start; every statement is idempotent.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
