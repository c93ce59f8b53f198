package store

import (
	"context"
	"testing"
)

func TestConnectionRunStore_CreateGetMarkError(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	_, conn := createTestConnection(t, pool)
	runs := NewConnectionRunStore(pool)

	run, err := runs.Create(ctx, conn.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != ConnectionRunStatusSuccess {
		t.Fatalf("expected new run to default to success, got %s", run.Status)
	}
	if run.RunType != ConnectionRunTypePoll {
		t.Fatalf("expected run_type=poll, got %s", run.RunType)
	}

	fetched, err := runs.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if fetched.ConnectionID != conn.ID {
		t.Fatalf("expected connection id %d, got %d", conn.ID, fetched.ConnectionID)
	}

	if err := runs.MarkError(ctx, run.ID, "qbxml parse failed"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	errored, err := runs.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("get after mark error: %v", err)
	}
	if errored.Status != ConnectionRunStatusError {
		t.Fatalf("expected status=error, got %s", errored.Status)
	}
	if errored.ErrorMessage == nil || *errored.ErrorMessage != "qbxml parse failed" {
		t.Fatalf("expected error message set, got %v", errored.ErrorMessage)
	}
}
