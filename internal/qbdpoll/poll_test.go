package qbdpoll

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/erauner12/qbd-sync-gateway/internal/db"
	"github.com/erauner12/qbd-sync-gateway/internal/schema"
	"github.com/erauner12/qbd-sync-gateway/internal/store"
)

// getTestDB returns a pool against a real Postgres instance, skipping the
// test when none is configured — the same gating the rest of this codebase's
// DB-backed tests use.
func getTestDB(t *testing.T) *testPoolSet {
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

	return &testPoolSet{
		pool:      pool,
		tenants:   store.NewTenantStore(pool),
		conns:     store.NewConnectionIdentityStore(pool),
		creds:     store.NewCredentialsStore(pool),
		syncState: store.NewSyncStateStore(pool),
		events:    store.NewSyncEventStore(pool),
		runs:      store.NewConnectionRunStore(pool),
		inventory: store.NewInventoryStore(pool),
		invEvents: store.NewInventoryEventStore(pool),
	}
}

type testPoolSet struct {
	pool      *pgxpool.Pool
	tenants   *store.TenantStore
	conns     *store.ConnectionIdentityStore
	creds     *store.CredentialsStore
	syncState *store.SyncStateStore
	events    *store.SyncEventStore
	runs      *store.ConnectionRunStore
	inventory *store.InventoryStore
	invEvents *store.InventoryEventStore
}

func (p *testPoolSet) newService() *Service {
	return NewService(p.conns, p.creds, p.syncState, p.events, p.runs, p.inventory, p.invEvents, zerolog.Nop())
}

func setupConnection(t *testing.T, p *testPoolSet) (username, password string) {
	t.Helper()
	ctx := context.Background()

	tenant, err := p.tenants.Create(ctx, nil)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	conn, err := p.conns.Create(ctx, store.CreateConnectionIdentity{
		TenantID:    tenant.ID,
		ErpProvider: store.ErpProviderQuickbooks,
		ErpType:     store.ErpProviderTypeDesktop,
		ErpAuthType: store.ErpAuthTypeUsernamePassword,
		Environment: store.ErpEnvironmentProduction,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	username = "qbd-user"
	password = "qbd-pass"
	if _, err := p.creds.Create(ctx, store.CreateCredentials{
		ConnectionID:     conn.ID,
		EncKeyID:         "test-key",
		ProviderUserID:   &username,
		ProviderPassword: &password,
	}); err != nil {
		t.Fatalf("create credentials: %v", err)
	}

	return username, password
}

func TestHandleRequest_FirstCycleHasWork(t *testing.T) {
	p := getTestDB(t)
	username, password := setupConnection(t, p)
	svc := p.newService()

	out, err := svc.HandleRequest(context.Background(), username, password)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HasWork {
		t.Fatalf("expected work on first cycle")
	}
	if out.XML == "" {
		t.Fatalf("expected non-empty query XML")
	}
}

func TestHandleRequest_WrongPassword(t *testing.T) {
	p := getTestDB(t)
	username, _ := setupConnection(t, p)
	svc := p.newService()

	_, err := svc.HandleRequest(context.Background(), username, "not-the-password")
	if err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHandleResponse_IngestsItemsAndClearsCursor(t *testing.T) {
	p := getTestDB(t)
	username, password := setupConnection(t, p)
	svc := p.newService()
	ctx := context.Background()

	if _, err := svc.HandleRequest(ctx, username, password); err != nil {
		t.Fatalf("handle request: %v", err)
	}

	xmlBody := `<?xml version="1.0"?>
<QBXML><QBXMLMsgsRs>
  <ItemInventoryQueryRs requestID="1" statusCode="0" statusMessage="OK" iteratorRemainingCount="0">
    <ItemInventoryRet>
      <ListID>80000001-123456</ListID>
      <Name>Widget</Name>
      <SalesPrice>9.99</SalesPrice>
      <QuantityOnHand>5</QuantityOnHand>
    </ItemInventoryRet>
  </ItemInventoryQueryRs>
</QBXMLMsgsRs></QBXML>`

	out, err := svc.HandleResponse(ctx, username, password, ResponseInput{ResponseXML: xmlBody})
	if err != nil {
		t.Fatalf("handle response: %v", err)
	}
	if out.HasMore {
		t.Fatalf("expected no more pages")
	}

	creds, err := p.creds.GetByProviderUserID(ctx, username)
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if _, err := p.inventory.FindBySystemID(ctx, creds.ConnectionID, store.SystemIDKeyQbd, "80000001-123456"); err != nil {
		t.Fatalf("expected inventory record for the ingested item: %v", err)
	}
	state, err := p.syncState.GetByConnectionID(ctx, creds.ConnectionID)
	if err != nil {
		t.Fatalf("load sync state: %v", err)
	}
	if state.SyncCursor != nil {
		t.Fatalf("expected cursor cleared, got %s", state.SyncCursor)
	}

	req2, err := svc.HandleRequest(ctx, username, password)
	if err != nil {
		t.Fatalf("second handle request: %v", err)
	}
	if !req2.HasWork {
		t.Fatalf("expected the recurring event to be runnable again")
	}
}
