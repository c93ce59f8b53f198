package store

import (
	"context"
	"errors"
	"testing"
)

func TestConnectionIdentityStore_CreateListGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()

	tenants := NewTenantStore(pool)
	conns := NewConnectionIdentityStore(pool)

	tenant, err := tenants.Create(ctx, nil)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	created, err := conns.Create(ctx, CreateConnectionIdentity{
		TenantID:    tenant.ID,
		ErpProvider: ErpProviderQuickbooks,
		ErpType:     ErpProviderTypeDesktop,
		ErpAuthType: ErpAuthTypeUsernamePassword,
		Environment: ErpEnvironmentProduction,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	list, err := conns.ListQBDByTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("list qbd connections: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected exactly the created connection, got %+v", list)
	}

	fetched, err := conns.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if fetched.TenantID != tenant.ID {
		t.Fatalf("expected tenant id %d, got %d", tenant.ID, fetched.TenantID)
	}

	if err := conns.RecordError(ctx, created.ID, "QBWC1234", "auth failed"); err != nil {
		t.Fatalf("record error: %v", err)
	}
	afterError, err := conns.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after error: %v", err)
	}
	if afterError.AuthStatus != ErpConnectionAuthStatusError {
		t.Fatalf("expected auth_status=error, got %s", afterError.AuthStatus)
	}
	if afterError.LastErrorCode == nil || *afterError.LastErrorCode != "QBWC1234" {
		t.Fatalf("expected last_error_code set, got %v", afterError.LastErrorCode)
	}

	if err := conns.RecordSuccess(ctx, created.ID); err != nil {
		t.Fatalf("record success: %v", err)
	}
	afterSuccess, err := conns.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after success: %v", err)
	}
	if afterSuccess.AuthStatus != ErpConnectionAuthStatusConnected {
		t.Fatalf("expected auth_status=connected, got %s", afterSuccess.AuthStatus)
	}
	if afterSuccess.LastErrorCode != nil {
		t.Fatalf("expected last_error_code cleared, got %v", afterSuccess.LastErrorCode)
	}
	if afterSuccess.LastSuccessAt == nil {
		t.Fatal("expected last_success_at set")
	}
}

func TestConnectionIdentityStore_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	conns := NewConnectionIdentityStore(pool)

	_, err := conns.GetByID(context.Background(), 99999999)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}
