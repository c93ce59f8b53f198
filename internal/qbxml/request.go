// Package qbxml builds and parses the QBXML wire format exchanged with
// QuickBooks Desktop through the Web Connector. The parser below uses the
// standard library's encoding/xml decoder as a pull-parser: a single
// forward pass collecting child element text into a map per
// <ItemInventoryRet>.
package qbxml

import "fmt"

// PageSize bounds how many items QuickBooks Desktop returns per query.
const PageSize = 50

// BuildItemInventoryQuery renders an ItemInventoryQueryRq envelope.
// iteratorID is empty for the first page of a poll cycle (iterator="Start");
// non-empty on subsequent pages (iterator="Continue" iteratorID="...").
func BuildItemInventoryQuery(iteratorID string) string {
	if iteratorID == "" {
		return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<?qbxml version="13.0"?>
<QBXML>
  <QBXMLMsgsRq onError="stopOnError">
    <ItemInventoryQueryRq requestID="1" iterator="Start" maxReturned="%d">
    </ItemInventoryQueryRq>
  </QBXMLMsgsRq>
</QBXML>`, PageSize)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<?qbxml version="13.0"?>
<QBXML>
  <QBXMLMsgsRq onError="stopOnError">
    <ItemInventoryQueryRq requestID="1" iterator="Continue" iteratorID="%s" maxReturned="%d">
    </ItemInventoryQueryRq>
  </QBXMLMsgsRq>
</QBXML>`, iteratorID, PageSize)
}
