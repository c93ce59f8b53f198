package store

import (
	"context"
	"errors"
	"testing"
)

func TestCredentialsStore_CreateAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	_, conn := createTestConnection(t, pool)
	creds := NewCredentialsStore(pool)

	username := "pro_portals_abc123"
	password := "s3cret"
	created, err := creds.Create(ctx, CreateCredentials{
		ConnectionID:     conn.ID,
		EncKeyID:         "local",
		ProviderUserID:   &username,
		ProviderPassword: &password,
	})
	if err != nil {
		t.Fatalf("create credentials: %v", err)
	}

	byConn, err := creds.GetByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get by connection id: %v", err)
	}
	if byConn.ID != created.ID {
		t.Fatalf("expected id %d, got %d", created.ID, byConn.ID)
	}

	byUser, err := creds.GetByProviderUserID(ctx, username)
	if err != nil {
		t.Fatalf("get by provider user id: %v", err)
	}
	if byUser.ConnectionID != conn.ID {
		t.Fatalf("expected connection id %d, got %d", conn.ID, byUser.ConnectionID)
	}
}

func TestCredentialsStore_GetByProviderUserID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	creds := NewCredentialsStore(pool)

	_, err := creds.GetByProviderUserID(context.Background(), "nobody-at-all")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}
