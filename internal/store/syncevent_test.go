package store

import (
	"context"
	"errors"
	"testing"
)

func TestSyncEventStore_RecurringLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	_, conn := createTestConnection(t, pool)

	states := NewSyncStateStore(pool)
	runs := NewConnectionRunStore(pool)
	events := NewSyncEventStore(pool)

	state, err := states.EnsureByConnectionID(ctx, conn.ID)
	if err != nil {
		t.Fatalf("ensure sync state: %v", err)
	}

	// No recurring event exists yet.
	_, err = events.FindPendingOrErroredRecurring(ctx, state.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found before first cycle, got %v", err)
	}

	run1, err := runs.Create(ctx, conn.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	event, err := events.CreateRecurring(ctx, state.ID, run1.ID)
	if err != nil {
		t.Fatalf("create recurring event: %v", err)
	}
	if event.Status != SyncEventStatusInProgress {
		t.Fatalf("expected new recurring event in_progress, got %s", event.Status)
	}
	if event.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", event.Attempts)
	}

	inProgress, err := events.FindInProgressRecurring(ctx, state.ID)
	if err != nil {
		t.Fatalf("find in progress: %v", err)
	}
	if inProgress.ID != event.ID {
		t.Fatalf("expected same event, got %d vs %d", inProgress.ID, event.ID)
	}

	// FinishCycle always returns the event to pending, never a terminal
	// success/completed state, so the next sendRequestXML call picks it up.
	if err := events.FinishCycle(ctx, event.ID, nil); err != nil {
		t.Fatalf("finish cycle: %v", err)
	}

	pending, err := events.FindPendingOrErroredRecurring(ctx, state.ID)
	if err != nil {
		t.Fatalf("find pending after finish: %v", err)
	}
	if pending.Status != SyncEventStatusPending {
		t.Fatalf("expected status=pending, got %s", pending.Status)
	}

	run2, err := runs.Create(ctx, conn.ID)
	if err != nil {
		t.Fatalf("create second run: %v", err)
	}
	if err := events.BeginCycle(ctx, pending.ID, run2.ID); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}

	resumed, err := events.FindInProgressRecurring(ctx, state.ID)
	if err != nil {
		t.Fatalf("find in progress after begin: %v", err)
	}
	if resumed.Attempts != 2 {
		t.Fatalf("expected attempts incremented to 2, got %d", resumed.Attempts)
	}
	if resumed.ConnectionRunID == nil || *resumed.ConnectionRunID != run2.ID {
		t.Fatalf("expected linked to run2 %d, got %v", run2.ID, resumed.ConnectionRunID)
	}

	errBody := []byte(`{"message":"qbd returned a fault"}`)
	if err := events.MarkError(ctx, resumed.ID, errBody); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	errored, err := events.FindPendingOrErroredRecurring(ctx, state.ID)
	if err != nil {
		t.Fatalf("find errored: %v", err)
	}
	if errored.Status != SyncEventStatusError {
		t.Fatalf("expected status=error, got %s", errored.Status)
	}
	if string(errored.LastError) != string(errBody) {
		t.Fatalf("expected last_error %s, got %s", errBody, errored.LastError)
	}
}
