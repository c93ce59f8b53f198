package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// createTestConnection creates a tenant and a QBD connection identity for
// use by store tests that need a connection_id foreign key.
func createTestConnection(t *testing.T, pool *pgxpool.Pool) (*Tenant, *ConnectionIdentity) {
	t.Helper()
	ctx := context.Background()

	tenant, err := NewTenantStore(pool).Create(ctx, nil)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	conn, err := NewConnectionIdentityStore(pool).Create(ctx, CreateConnectionIdentity{
		TenantID:    tenant.ID,
		ErpProvider: ErpProviderQuickbooks,
		ErpType:     ErpProviderTypeDesktop,
		ErpAuthType: ErpAuthTypeUsernamePassword,
		Environment: ErpEnvironmentProduction,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	return tenant, conn
}
