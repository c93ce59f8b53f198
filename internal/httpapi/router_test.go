package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/erauner12/qbd-sync-gateway/internal/auth"
	"github.com/erauner12/qbd-sync-gateway/internal/db"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdpoll"
	"github.com/erauner12/qbd-sync-gateway/internal/qbdprovision"
	"github.com/erauner12/qbd-sync-gateway/internal/schema"
	"github.com/erauner12/qbd-sync-gateway/internal/store"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, *store.TenantStore) {
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
	t.Cleanup(pool.Close)
	if err := schema.Apply(ctx, pool); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	tenants := store.NewTenantStore(pool)
	conns := store.NewConnectionIdentityStore(pool)
	creds := store.NewCredentialsStore(pool)
	syncState := store.NewSyncStateStore(pool)
	events := store.NewSyncEventStore(pool)
	runs := store.NewConnectionRunStore(pool)
	inventory := store.NewInventoryStore(pool)
	invEvents := store.NewInventoryEventStore(pool)

	pollSvc := qbdpoll.NewService(conns, creds, syncState, events, runs, inventory, invEvents, zerolog.Nop())
	provSvc := qbdprovision.NewService(tenants, conns, creds)

	return &Server{Poll: pollSvc, Provision: provSvc, DefaultApp: "Test App"}, tenants
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Routes(auth.JWTCfg{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGenerateQWC_UnknownTenant(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Routes(auth.JWTCfg{}))
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"tenant_id": "TN_doesnotexist"})
	resp, err := http.Post(srv.URL+"/client-systems/quickbooks/desktop/qwc", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post qwc: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPollRequest_Unauthorized(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Routes(auth.JWTCfg{}))
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"username": "nobody", "password": "nope"})
	resp, err := http.Post(srv.URL+"/poll/v1/qbwc", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post qbwc: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
