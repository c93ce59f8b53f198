package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
	"github.com/erauner12/qbd-sync-gateway/internal/schema"
	"github.com/jackc/pgx/v5/pgxpool"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := schema.Apply(ctx, pool); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestTenantStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	store := NewTenantStore(pool)
	ctx := context.Background()

	name := "Acme Distribution"
	created, err := store.Create(ctx, &name)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if created.Status != TenantStatusActive {
		t.Fatalf("expected new tenant active, got %s", created.Status)
	}
	if created.TenantID[:3] != "TN_" {
		t.Fatalf("expected TN_ prefix, got %s", created.TenantID)
	}

	fetched, err := store.GetByTenantID(ctx, created.TenantID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("expected same row, got id=%d want=%d", fetched.ID, created.ID)
	}
	if fetched.DisplayName == nil || *fetched.DisplayName != name {
		t.Fatalf("expected display name %q, got %v", name, fetched.DisplayName)
	}

	active, err := store.IsActive(ctx, created.TenantID)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if !active {
		t.Fatal("expected newly created tenant to be active")
	}
}

func TestTenantStore_GetByTenantID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	store := NewTenantStore(pool)

	_, err := store.GetByTenantID(context.Background(), "TN_doesnotexist")
	var nf *NotFoundError
	if err == nil {
		t.Fatal("expected not found error")
	}
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}
