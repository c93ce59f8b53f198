package qbxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// InventoryItem is one <ItemInventoryRet> parsed out of a query response.
type InventoryItem struct {
	// ListID is QBD's stable identifier for the item; used as system_id.
	ListID string
	Name          string
	FullName      string
	SalesPriceCents int32
	HasSalesPrice   bool
	QuantityOnHand  int32
	HasQuantity     bool
	SalesDesc       string
	// Raw holds every parsed child tag verbatim, stored as original_record_body.
	Raw map[string]string
}

// InventoryQueryResponse is the parsed form of an ItemInventoryQueryRs.
type InventoryQueryResponse struct {
	IteratorID      string
	RemainingCount  int64
	StatusCode      string
	StatusMessage   string
	Items           []InventoryItem
}

// ParseInventoryQueryResponse scans an ItemInventoryQueryRs document,
// collecting each ItemInventoryRet's child element text into a map keyed by
// tag name, then deriving the typed fields (ListID/Name/FullName/SalesPrice/
// QuantityOnHand/SalesDesc) from that map.
func ParseInventoryQueryResponse(xmlBody string) (*InventoryQueryResponse, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlBody))

	out := &InventoryQueryResponse{StatusCode: "0"}

	inItem := false
	var currentTag string
	currentData := map[string]string{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml parse error: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ItemInventoryQueryRs":
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "iteratorID":
						out.IteratorID = attr.Value
					case "iteratorRemainingCount":
						if n, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
							out.RemainingCount = n
						}
					case "statusCode":
						out.StatusCode = attr.Value
					case "statusMessage":
						out.StatusMessage = attr.Value
					}
				}
			case "ItemInventoryRet":
				inItem = true
				currentData = map[string]string{}
				currentTag = ""
			default:
				if inItem {
					currentTag = t.Name.Local
				}
			}

		case xml.CharData:
			if inItem && currentTag != "" {
				text := strings.TrimSpace(string(t))
				if text != "" {
					currentData[currentTag] += text
				}
			}

		case xml.EndElement:
			if t.Name.Local == "ItemInventoryRet" {
				inItem = false
				if listID, ok := currentData["ListID"]; ok {
					out.Items = append(out.Items, buildItem(listID, currentData))
				}
				currentTag = ""
			} else if inItem {
				currentTag = ""
			}
		}
	}

	return out, nil
}

func buildItem(listID string, data map[string]string) InventoryItem {
	item := InventoryItem{
		ListID:   listID,
		Name:     data["Name"],
		FullName: data["FullName"],
		SalesDesc: data["SalesDesc"],
		Raw:      data,
	}

	if priceStr, ok := data["SalesPrice"]; ok {
		if price, err := strconv.ParseFloat(priceStr, 64); err == nil {
			item.SalesPriceCents = int32(math.Round(price * 100))
			item.HasSalesPrice = true
		}
	}

	if qtyStr, ok := data["QuantityOnHand"]; ok {
		if qty, err := strconv.ParseInt(qtyStr, 10, 32); err == nil {
			item.QuantityOnHand = int32(qty)
			item.HasQuantity = true
		}
	}

	return item
}
