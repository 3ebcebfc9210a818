package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is one sales order line as produced by the marketplace import.
// The costing engine treats these rows as read-only input: it never creates
// or mutates them, it only reads them to decide what to allocate or reserve.
type OrderLine struct {
	OrderID   string          `json:"order_id"`
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	ShippedAt *time.Time      `json:"shipped_at,omitempty"`
	Cancelled bool            `json:"cancelled"`
}

// Shipped reports whether the carrier has scanned the order out.
func (l OrderLine) Shipped() bool {
	return l.ShippedAt != nil
}

// CountsAsReserved reports whether this line holds stock against availability:
// unshipped and not cancelled. The COGS engine uses the complementary rule
// (shipped and not cancelled) so availability and costing never disagree
// about which orders count.
func (l OrderLine) CountsAsReserved() bool {
	return !l.Shipped() && !l.Cancelled
}
