// Package qbdprovision implements idempotent QuickBooks Desktop onboarding:
// look up an existing tenant, get-or-create its connection identity and
// credentials, and render the .qwc file the customer loads into QuickBooks
// Web Connector. The tenant must already exist: an unknown tenant id yields
// ErrTenantNotFound, and no tenant is created here.
package qbdprovision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/erauner12/qbd-sync-gateway/internal/store"
)

// ErrTenantNotFound is returned when the requested tenant does not exist.
var ErrTenantNotFound = errors.New("tenant not found")

// QWCResult is the idempotent get-or-create result: the current
// username/password/file id plus the base64-encoded .qwc file contents.
type QWCResult struct {
	TenantID      string
	Username      string
	Password      string
	FileID        string
	QWCFileBase64 string
}

type Service struct {
	tenants *store.TenantStore
	conns   *store.ConnectionIdentityStore
	creds   *store.CredentialsStore
}

func NewService(tenants *store.TenantStore, conns *store.ConnectionIdentityStore, creds *store.CredentialsStore) *Service {
	return &Service{tenants: tenants, conns: conns, creds: creds}
}

// GenerateQWC gets or creates the tenant's QuickBooks Desktop connection and
// its credentials, and returns a freshly rendered .qwc file for it. Calling
// this repeatedly for the same tenant returns the same username/password/
// file id every time — provisioning is idempotent, not one-shot.
func (s *Service) GenerateQWC(ctx context.Context, tenantID string, appName string) (*QWCResult, error) {
	tenant, err := s.tenants.GetByTenantID(ctx, tenantID)
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}

	conn, creds, err := s.getOrCreateConnectionAndCredentials(ctx, tenant, appName)
	if err != nil {
		return nil, fmt.Errorf("get or create qbd credentials: %w", err)
	}

	qwcXML := formatQWCTemplate(tenant.TenantID, *creds.ProviderUserID, *conn.CompanyFileID, appName)

	return &QWCResult{
		TenantID:      tenant.TenantID,
		Username:      *creds.ProviderUserID,
		Password:      *creds.ProviderPassword,
		FileID:        *conn.CompanyFileID,
		QWCFileBase64: base64.StdEncoding.EncodeToString([]byte(qwcXML)),
	}, nil
}

func (s *Service) getOrCreateConnectionAndCredentials(ctx context.Context, tenant *store.Tenant, appName string) (*store.ConnectionIdentity, *store.ErpConnectionCredentials, error) {
	existing, err := s.conns.ListQBDByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list qbd connections: %w", err)
	}
	if len(existing) > 0 {
		conn := existing[0]
		creds, err := s.creds.GetByConnectionID(ctx, conn.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("load credentials: %w", err)
		}
		return &conn, creds, nil
	}

	fileID := randomFileID()
	webConnectorAppName := appName
	conn, err := s.conns.Create(ctx, store.CreateConnectionIdentity{
		TenantID:            tenant.ID,
		ErpProvider:         store.ErpProviderQuickbooks,
		ErpType:             store.ErpProviderTypeDesktop,
		ErpAuthType:         store.ErpAuthTypeUsernamePassword,
		Environment:         store.ErpEnvironmentProduction,
		CompanyFileID:       &fileID,
		WebConnectorAppName: &webConnectorAppName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create connection identity: %w", err)
	}

	username := randomUsername()
	password := randomPassword()
	creds, err := s.creds.Create(ctx, store.CreateCredentials{
		ConnectionID:     conn.ID,
		EncKeyID:         "qbd-provisioning-v1",
		ProviderUserID:   &username,
		ProviderPassword: &password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create credentials: %w", err)
	}

	return conn, creds, nil
}

// randomUsername mirrors random_username: a pro_portals_ prefix over a UUIDv4
// with the dashes stripped.
func randomUsername() string {
	return "pro_portals_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// randomPassword mirrors random_password: a bare UUIDv4, never embedded in
// the .qwc file itself — it travels to the customer out of band.
func randomPassword() string {
	return uuid.New().String()
}

// randomFileID mirrors random_file_id.
func randomFileID() string {
	return uuid.New().String()
}

// formatQWCTemplate renders the Web Connector config file. Password is
// deliberately absent: QBWC prompts the user for it on first connect and
// then stores it in its own credential vault, keyed by username+ownerID.
func formatQWCTemplate(tenantID, username, fileID, appName string) string {
	ownerID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("qbd-sync-gateway:"+tenantID)).String()
	fileIDUUID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fileID)).String()

	name := appName
	if name == "" {
		name = "QBD Sync Gateway"
	}

	return fmt.Sprintf(`<?xml version="1.0"?>
<QBWCXML>
	<AppName>%s</AppName>
	<AppID></AppID>
	<AppURL>https://qbd-sync-gateway.example.com/poll/v1/qbwc</AppURL>
	<AppDescription>Inventory sync for %s</AppDescription>
	<AppSupport>https://qbd-sync-gateway.example.com/support</AppSupport>
	<UserName>%s</UserName>
	<OwnerID>{%s}</OwnerID>
	<FileID>{%s}</FileID>
	<QBType>QBFS</QBType>
	<Scheduler>
		<RunEveryNMinutes>30</RunEveryNMinutes>
	</Scheduler>
	<IsReadOnly>false</IsReadOnly>
</QBWCXML>`, name, tenantID, username, ownerID, fileIDUUID)
}
