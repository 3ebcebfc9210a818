package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// LayerReference tags the business event that created a receipt layer.
type LayerReference string

const (
	LayerOpeningBalance LayerReference = "opening_balance"
	LayerStockIn        LayerReference = "stock_in"
	LayerReturn         LayerReference = "return"
)

// InventoryItem is a stock-keeping unit. Bundle items are virtual: they are
// never stocked directly and explode into components for costing.
type InventoryItem struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	IsBundle  bool      `json:"is_bundle"`
	CreatedAt time.Time `json:"created_at"`
}

// ReceiptLayer is one discrete batch of physical stock for a regular SKU.
// QtyRemaining only ever decreases through FIFO consumption and increases
// back through reversal restores; 0 ≤ QtyRemaining ≤ QtyReceived must hold
// at all times. Incorrect layers are voided, never deleted.
type ReceiptLayer struct {
	ID           int             `json:"id"`
	SKU          string          `json:"sku"`
	ReceivedAt   time.Time       `json:"received_at"`
	QtyReceived  decimal.Decimal `json:"qty_received"`
	QtyRemaining decimal.Decimal `json:"qty_remaining"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Reference    LayerReference  `json:"reference"`
	Voided       bool            `json:"voided"`
	CreatedAt    time.Time       `json:"created_at"`
}

// BundleComponent maps one component SKU of a bundle with its quantity per
// bundle unit. QtyPerUnit may be fractional.
type BundleComponent struct {
	ComponentSKU string          `json:"component_sku"`
	QtyPerUnit   decimal.Decimal `json:"qty_per_unit"`
}

// CogsAllocation records stock consumed (or restored, when Reversal is true)
// for one (order, component SKU) pair against one receipt layer.
type CogsAllocation struct {
	ID        int             `json:"id"`
	OrderID   string          `json:"order_id"`
	LineSKU   string          `json:"line_sku"` // SKU as sold, before bundle explosion
	SKU       string          `json:"sku"`      // component SKU actually consumed
	LayerID   int             `json:"layer_id"`
	Qty       decimal.Decimal `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Amount    decimal.Decimal `json:"amount"`
	Reversal  bool            `json:"reversal"`
	CreatedAt time.Time       `json:"created_at"`
}

// Availability is the on-demand reservation snapshot across all known SKUs.
// Available may be negative when unshipped orders outrun stock; that is a
// displayable oversold state, not an error.
type Availability struct {
	OnHand    map[string]decimal.Decimal `json:"on_hand"`
	Reserved  map[string]decimal.Decimal `json:"reserved"`
	Available map[string]decimal.Decimal `json:"available"`
}
