// Package qbdpoll implements the two-phase QuickBooks Desktop Web Connector
// poll-cycle engine: HandleRequest builds the QBXML query to send to QBD,
// HandleResponse ingests QBD's reply and upserts inventory.
//
// The recurring List/Inventory sync event acts as the lock token serializing
// poll cycles per connection; the cursor drives pagination across cycles.
package qbdpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/erauner12/qbd-sync-gateway/internal/qbxml"
	"github.com/erauner12/qbd-sync-gateway/internal/store"
)

// ErrUnauthorized is returned when the supplied username/password do not
// resolve to a QuickBooks Desktop connection.
var ErrUnauthorized = errors.New("unauthorized")

// ParseError wraps a QBXML decode failure or a non-zero QBD status code —
// the two conditions the HTTP layer maps to 422 rather than 500, since they
// indicate bad/unexpected data from QuickBooks Desktop, not a server fault.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

// RequestOutput is the result of handle_request (sendRequestXML).
type RequestOutput struct {
	HasWork bool
	XML     string
}

// ResponseInput is what the caller supplies to handle_response
// (receiveResponseXML): either the QBD response XML, or an error QBD
// returned in place of XML.
type ResponseInput struct {
	ResponseXML string
	QBDError    string
}

// ResponseOutput is the result of handle_response.
type ResponseOutput struct {
	// HasMore is true when pagination is not yet exhausted: the adapter
	// should return 100 to QBWC to call sendRequestXML again immediately.
	// False means return 0 and wait for the next scheduled poll.
	HasMore bool
}

type cursorPayload struct {
	IteratorID     string `json:"iterator_id"`
	RemainingCount int64  `json:"remaining_count"`
}

// Service is the QBD poll-cycle engine.
type Service struct {
	connIdentity *store.ConnectionIdentityStore
	credentials  *store.CredentialsStore
	syncState    *store.SyncStateStore
	syncEvents   *store.SyncEventStore
	runs         *store.ConnectionRunStore
	inventory    *store.InventoryStore
	invEvents    *store.InventoryEventStore
	log          zerolog.Logger
}

func NewService(
	connIdentity *store.ConnectionIdentityStore,
	credentials *store.CredentialsStore,
	syncState *store.SyncStateStore,
	syncEvents *store.SyncEventStore,
	runs *store.ConnectionRunStore,
	inventory *store.InventoryStore,
	invEvents *store.InventoryEventStore,
	log zerolog.Logger,
) *Service {
	return &Service{
		connIdentity: connIdentity,
		credentials:  credentials,
		syncState:    syncState,
		syncEvents:   syncEvents,
		runs:         runs,
		inventory:    inventory,
		invEvents:    invEvents,
		log:          log,
	}
}

// validateCredentials resolves (username, password) to a QBD connection
// identity (provider quickbooks, type desktop), the way a Web Connector
// Basic-auth check would. The connection's status and enabled flag are not
// checked.
func (s *Service) validateCredentials(ctx context.Context, username, password string) (*store.ConnectionIdentity, *store.ErpConnectionCredentials, error) {
	creds, err := s.credentials.GetByProviderUserID(ctx, username)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("validate credentials: %w", err)
	}

	if creds.ProviderPassword == nil || *creds.ProviderPassword != password {
		return nil, nil, ErrUnauthorized
	}

	conn, err := s.connIdentity.GetByID(ctx, creds.ConnectionID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("validate credentials: %w", err)
	}

	if conn.ErpProvider != store.ErpProviderQuickbooks || conn.ErpType != store.ErpProviderTypeDesktop {
		return nil, nil, ErrUnauthorized
	}

	return conn, creds, nil
}

// HandleRequest implements sendRequestXML.
func (s *Service) HandleRequest(ctx context.Context, username, password string) (RequestOutput, error) {
	conn, _, err := s.validateCredentials(ctx, username, password)
	if err != nil {
		return RequestOutput{}, err
	}

	syncState, err := s.syncState.EnsureByConnectionID(ctx, conn.ID)
	if err != nil {
		return RequestOutput{}, fmt.Errorf("ensure sync state: %w", err)
	}

	existing, err := s.syncEvents.FindPendingOrErroredRecurring(ctx, syncState.ID)
	var nf *store.NotFoundError
	notFound := errors.As(err, &nf)
	if err != nil && !notFound {
		return RequestOutput{}, fmt.Errorf("find recurring sync event: %w", err)
	}

	iteratorID := ""
	if syncState.SyncCursor != nil {
		var cursor cursorPayload
		if jsonErr := json.Unmarshal(syncState.SyncCursor, &cursor); jsonErr == nil {
			iteratorID = cursor.IteratorID
		}
	}
	xml := qbxml.BuildItemInventoryQuery(iteratorID)

	run, err := s.runs.Create(ctx, conn.ID)
	if err != nil {
		return RequestOutput{}, fmt.Errorf("create connection run: %w", err)
	}

	if notFound {
		if _, err := s.syncEvents.CreateRecurring(ctx, syncState.ID, run.ID); err != nil {
			return RequestOutput{}, fmt.Errorf("create recurring sync event: %w", err)
		}
	} else {
		if err := s.syncEvents.BeginCycle(ctx, existing.ID, run.ID); err != nil {
			return RequestOutput{}, fmt.Errorf("begin sync event cycle: %w", err)
		}
	}

	return RequestOutput{HasWork: true, XML: xml}, nil
}

// HandleResponse implements receiveResponseXML.
func (s *Service) HandleResponse(ctx context.Context, username, password string, in ResponseInput) (ResponseOutput, error) {
	conn, _, err := s.validateCredentials(ctx, username, password)
	if err != nil {
		return ResponseOutput{}, err
	}

	syncState, err := s.syncState.EnsureByConnectionID(ctx, conn.ID)
	if err != nil {
		return ResponseOutput{}, fmt.Errorf("ensure sync state: %w", err)
	}

	event, err := s.syncEvents.FindInProgressRecurring(ctx, syncState.ID)
	var nf *store.NotFoundError
	hasEvent := !errors.As(err, &nf)
	if err != nil && hasEvent {
		return ResponseOutput{}, fmt.Errorf("find in-progress sync event: %w", err)
	}

	var run *store.ConnectionRun
	if hasEvent && event.ConnectionRunID != nil {
		run, err = s.runs.GetByID(ctx, *event.ConnectionRunID)
		if err != nil {
			var rnf *store.NotFoundError
			if !errors.As(err, &rnf) {
				return ResponseOutput{}, fmt.Errorf("load connection run: %w", err)
			}
			run = nil
		}
	}

	// QBD returned an error in place of XML.
	if in.QBDError != "" {
		s.markErrorBestEffort(ctx, hasEvent, event, run, in.QBDError)
		return ResponseOutput{HasMore: false}, nil
	}

	if in.ResponseXML == "" {
		return ResponseOutput{HasMore: false}, nil
	}

	parsed, err := qbxml.ParseInventoryQueryResponse(in.ResponseXML)
	if err != nil {
		msg := fmt.Sprintf("XML parse error: %v", err)
		s.markErrorBestEffort(ctx, hasEvent, event, run, msg)
		return ResponseOutput{}, &ParseError{msg: msg}
	}

	if parsed.StatusCode != "0" {
		msg := fmt.Sprintf("QBD status %s: %s", parsed.StatusCode, parsed.StatusMessage)
		s.markErrorBestEffort(ctx, hasEvent, event, run, msg)
		return ResponseOutput{}, &ParseError{msg: msg}
	}

	var itemErrors []string
	for _, item := range parsed.Items {
		if err := s.upsertInventoryItem(ctx, conn, item); err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("ListID=%s: %v", item.ListID, err))
		}
	}

	if err := s.updateCursor(ctx, syncState.ID, parsed); err != nil {
		s.log.Error().Err(err).Msg("failed to update sync cursor")
	}

	hasErrors := len(itemErrors) > 0

	if hasEvent {
		var errBody []byte
		if hasErrors {
			errBody, _ = json.Marshal(map[string]any{"errors": itemErrors})
		}
		if err := s.syncEvents.FinishCycle(ctx, event.ID, errBody); err != nil {
			s.log.Error().Err(err).Msg("failed to finish sync event cycle")
		}
	}

	if hasErrors && run != nil {
		joined := ""
		for i, e := range itemErrors {
			if i > 0 {
				joined += "; "
			}
			joined += e
		}
		if err := s.runs.MarkError(ctx, run.ID, joined); err != nil {
			s.log.Error().Err(err).Msg("failed to mark connection run error")
		}
	}

	return ResponseOutput{HasMore: parsed.RemainingCount > 0}, nil
}

func (s *Service) markErrorBestEffort(ctx context.Context, hasEvent bool, event *store.SyncEvent, run *store.ConnectionRun, message string) {
	errBody, _ := json.Marshal(map[string]string{"message": message})

	if hasEvent {
		if err := s.syncEvents.MarkError(ctx, event.ID, errBody); err != nil {
			s.log.Error().Err(err).Msg("failed to mark sync event error")
		}
	}
	if run != nil {
		if err := s.runs.MarkError(ctx, run.ID, message); err != nil {
			s.log.Error().Err(err).Msg("failed to mark connection run error")
		}
	}
}

// updateCursor persists the next page's iterator, or clears the cursor
// entirely when pagination is complete. Clearing to NULL requires a full
// column rewrite (store.SyncStateStore.SetCursor), not a partial patch.
func (s *Service) updateCursor(ctx context.Context, syncStateID int64, parsed *qbxml.InventoryQueryResponse) error {
	if parsed.RemainingCount <= 0 {
		return s.syncState.SetCursor(ctx, syncStateID, nil)
	}
	body, err := json.Marshal(cursorPayload{IteratorID: parsed.IteratorID, RemainingCount: parsed.RemainingCount})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	return s.syncState.SetCursor(ctx, syncStateID, body)
}

// upsertInventoryItem matches on (originating_connection_id, system_id_key=Qbd,
// system_id=ListID), creating the canonical record + its first event when
// unseen, or refreshing the record body and latest event otherwise.
func (s *Service) upsertInventoryItem(ctx context.Context, conn *store.ConnectionIdentity, item qbxml.InventoryItem) error {
	rawBody, err := json.Marshal(item.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw item: %w", err)
	}

	record, err := s.inventory.FindBySystemID(ctx, conn.ID, store.SystemIDKeyQbd, item.ListID)
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		record, err = s.inventory.Create(ctx, conn.TenantID, conn.ID, store.SystemIDKeyQbd, item.ListID, rawBody)
		if err != nil {
			return fmt.Errorf("create inventory record: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("find inventory record: %w", err)
	} else {
		if err := s.inventory.RefreshBody(ctx, record.ID, rawBody); err != nil {
			return fmt.Errorf("refresh inventory record body: %w", err)
		}
	}

	fields := store.InventoryEventFields{
		OriginalRecordBody: rawBody,
		Name:               strPtrOrNil(item.Name),
		Description:        strPtrOrNil(item.SalesDesc),
		ExternalCode:       strPtrOrNil(item.FullName),
	}
	if item.HasSalesPrice {
		fields.Price = int32Ptr(item.SalesPriceCents)
	}
	if item.HasQuantity {
		fields.Qty = int32Ptr(item.QuantityOnHand)
	}

	existingEvent, err := s.invEvents.FindLatest(ctx, record.ID, conn.ID)
	if errors.As(err, &nf) {
		if _, err := s.invEvents.Create(ctx, record.ID, conn.ID, fields); err != nil {
			return fmt.Errorf("create inventory record event: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("find latest inventory record event: %w", err)
	}

	if err := s.invEvents.Update(ctx, existingEvent.ID, fields); err != nil {
		return fmt.Errorf("update inventory record event: %w", err)
	}
	return nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int32Ptr(n int32) *int32 { return &n }
