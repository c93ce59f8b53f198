package store

import (
	"context"
	"errors"
	"testing"
)

func TestSyncStateStore_EnsureAndSetCursor(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	_, conn := createTestConnection(t, pool)
	states := NewSyncStateStore(pool)

	first, err := states.EnsureByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("ensure sync state: %v", err)
	}
	if first.SyncCursor != nil {
		t.Fatalf("expected nil cursor on first creation, got %v", first.SyncCursor)
	}

	again, err := states.EnsureByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("ensure sync state again: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected idempotent ensure, got different ids %d vs %d", first.ID, again.ID)
	}

	cursor := []byte(`{"iterator_id":"abc-123","remaining_count":5}`)
	if err := states.SetCursor(ctx, first.ID, cursor); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	withCursor, err := states.GetByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get after set cursor: %v", err)
	}
	if string(withCursor.SyncCursor) != string(cursor) {
		t.Fatalf("expected cursor %s, got %s", cursor, withCursor.SyncCursor)
	}

	if err := states.SetCursor(ctx, first.ID, nil); err != nil {
		t.Fatalf("clear cursor: %v", err)
	}
	cleared, err := states.GetByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("get after clear cursor: %v", err)
	}
	if cleared.SyncCursor != nil {
		t.Fatalf("expected cursor cleared to nil, got %v", cleared.SyncCursor)
	}
}

func TestSyncStateStore_GetByConnectionID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	states := NewSyncStateStore(pool)

	_, err := states.GetByConnectionID(context.Background(), 99999999)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}
