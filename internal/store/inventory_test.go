package store

import (
	"context"
	"errors"
	"testing"
)

func TestInventoryStore_FindCreateRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	tenant, conn := createTestConnection(t, pool)
	inv := NewInventoryStore(pool)

	_, err := inv.FindBySystemID(ctx, conn.ID, SystemIDKeyQbd, "LISTID-001")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found before create, got %v", err)
	}

	body := []byte(`{"ListID":"LISTID-001","Name":"Widget"}`)
	record, err := inv.Create(ctx, tenant.ID, conn.ID, SystemIDKeyQbd, "LISTID-001", body)
	if err != nil {
		t.Fatalf("create inventory record: %v", err)
	}

	found, err := inv.FindBySystemID(ctx, conn.ID, SystemIDKeyQbd, "LISTID-001")
	if err != nil {
		t.Fatalf("find after create: %v", err)
	}
	if found.ID != record.ID {
		t.Fatalf("expected same record, got %d vs %d", found.ID, record.ID)
	}

	updatedBody := []byte(`{"ListID":"LISTID-001","Name":"Widget v2"}`)
	if err := inv.RefreshBody(ctx, record.ID, updatedBody); err != nil {
		t.Fatalf("refresh body: %v", err)
	}
	refreshed, err := inv.FindBySystemID(ctx, conn.ID, SystemIDKeyQbd, "LISTID-001")
	if err != nil {
		t.Fatalf("find after refresh: %v", err)
	}
	if string(refreshed.OriginalRecordBody) != string(updatedBody) {
		t.Fatalf("expected updated body %s, got %s", updatedBody, refreshed.OriginalRecordBody)
	}
}

func TestInventoryEventStore_FindLatestCreateUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := getTestPool(t)
	ctx := context.Background()
	tenant, conn := createTestConnection(t, pool)
	inv := NewInventoryStore(pool)
	events := NewInventoryEventStore(pool)

	record, err := inv.Create(ctx, tenant.ID, conn.ID, SystemIDKeyQbd, "LISTID-002", []byte(`{}`))
	if err != nil {
		t.Fatalf("create inventory record: %v", err)
	}

	_, err = events.FindLatest(ctx, record.ID, conn.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found before first event, got %v", err)
	}

	name := "Widget"
	qty := int32(10)
	price := int32(1999)
	created, err := events.Create(ctx, record.ID, conn.ID, InventoryEventFields{
		OriginalRecordBody: []byte(`{}`),
		Name:               &name,
		Qty:                &qty,
		Price:              &price,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	latest, err := events.FindLatest(ctx, record.ID, conn.ID)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.ID != created.ID {
		t.Fatalf("expected same event, got %d vs %d", latest.ID, created.ID)
	}

	newQty := int32(7)
	if err := events.Update(ctx, created.ID, InventoryEventFields{
		OriginalRecordBody: []byte(`{}`),
		Name:               &name,
		Qty:                &newQty,
		Price:              &price,
	}); err != nil {
		t.Fatalf("update event: %v", err)
	}

	updated, err := events.FindLatest(ctx, record.ID, conn.ID)
	if err != nil {
		t.Fatalf("find latest after update: %v", err)
	}
	if updated.Qty == nil || *updated.Qty != 7 {
		t.Fatalf("expected qty updated to 7, got %v", updated.Qty)
	}

	// A poll response that omits a field (QBD's ItemInventoryQueryRs drops
	// SalesPrice/QuantityOnHand on some items) must leave the previously
	// recorded value in place rather than null it out.
	if err := events.Update(ctx, created.ID, InventoryEventFields{
		OriginalRecordBody: []byte(`{"refreshed":true}`),
	}); err != nil {
		t.Fatalf("partial update event: %v", err)
	}

	afterPartial, err := events.FindLatest(ctx, record.ID, conn.ID)
	if err != nil {
		t.Fatalf("find latest after partial update: %v", err)
	}
	if afterPartial.Qty == nil || *afterPartial.Qty != 7 {
		t.Fatalf("expected qty to remain 7 after partial update, got %v", afterPartial.Qty)
	}
	if afterPartial.Price == nil || *afterPartial.Price != price {
		t.Fatalf("expected price to remain %d after partial update, got %v", price, afterPartial.Price)
	}
	if afterPartial.Name == nil || *afterPartial.Name != name {
		t.Fatalf("expected name to remain %q after partial update, got %v", name, afterPartial.Name)
	}
	if string(afterPartial.OriginalRecordBody) != `{"refreshed":true}` {
		t.Fatalf("expected original_record_body to update, got %s", afterPartial.OriginalRecordBody)
	}
}
