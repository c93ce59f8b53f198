package qbxml

import (
	"strings"
	"testing"
)

const sampleResponse = `<?xml version="1.0"?>
<QBXML>
  <QBXMLMsgsRs>
    <ItemInventoryQueryRs requestID="1" statusCode="0" statusMessage="Status OK" iteratorID="abc-123" iteratorRemainingCount="3">
      <ItemInventoryRet>
        <ListID>80000001-123456</ListID>
        <Name>Widget</Name>
        <FullName>Widgets:Widget</FullName>
        <SalesDesc>A fine widget</SalesDesc>
        <SalesPrice>19.99</SalesPrice>
        <QuantityOnHand>42</QuantityOnHand>
      </ItemInventoryRet>
      <ItemInventoryRet>
        <ListID>80000002-123456</ListID>
        <Name>Gadget</Name>
      </ItemInventoryRet>
    </ItemInventoryQueryRs>
  </QBXMLMsgsRs>
</QBXML>`

func TestParseInventoryQueryResponse(t *testing.T) {
	resp, err := ParseInventoryQueryResponse(sampleResponse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.StatusCode != "0" {
		t.Fatalf("expected statusCode=0, got %s", resp.StatusCode)
	}
	if resp.IteratorID != "abc-123" {
		t.Fatalf("expected iteratorID=abc-123, got %s", resp.IteratorID)
	}
	if resp.RemainingCount != 3 {
		t.Fatalf("expected remaining count 3, got %d", resp.RemainingCount)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}

	first := resp.Items[0]
	if first.ListID != "80000001-123456" {
		t.Fatalf("unexpected ListID: %s", first.ListID)
	}
	if !first.HasSalesPrice || first.SalesPriceCents != 1999 {
		t.Fatalf("expected sales price cents 1999, got %d (has=%v)", first.SalesPriceCents, first.HasSalesPrice)
	}
	if !first.HasQuantity || first.QuantityOnHand != 42 {
		t.Fatalf("expected quantity 42, got %d", first.QuantityOnHand)
	}
	if first.Raw["SalesDesc"] != "A fine widget" {
		t.Fatalf("expected raw SalesDesc preserved, got %q", first.Raw["SalesDesc"])
	}

	second := resp.Items[1]
	if second.HasSalesPrice {
		t.Fatalf("expected no sales price for second item")
	}
}

func TestParseInventoryQueryResponse_StatusError(t *testing.T) {
	xmlBody := `<?xml version="1.0"?>
<QBXML><QBXMLMsgsRs>
  <ItemInventoryQueryRs requestID="1" statusCode="3180" statusMessage="Object not found"></ItemInventoryQueryRs>
</QBXMLMsgsRs></QBXML>`

	resp, err := ParseInventoryQueryResponse(xmlBody)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != "3180" {
		t.Fatalf("expected statusCode=3180, got %s", resp.StatusCode)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(resp.Items))
	}
}

func TestBuildItemInventoryQuery_Start(t *testing.T) {
	xmlOut := BuildItemInventoryQuery("")
	if !strings.Contains(xmlOut, `iterator="Start"`) {
		t.Fatalf("expected Start iterator, got: %s", xmlOut)
	}
	if strings.Contains(xmlOut, "iteratorID") {
		t.Fatalf("did not expect iteratorID on Start query: %s", xmlOut)
	}
}

func TestBuildItemInventoryQuery_Continue(t *testing.T) {
	xmlOut := BuildItemInventoryQuery("cursor-abc")
	if !strings.Contains(xmlOut, `iterator="Continue" iteratorID="cursor-abc"`) {
		t.Fatalf("expected Continue iterator with id, got: %s", xmlOut)
	}
}
