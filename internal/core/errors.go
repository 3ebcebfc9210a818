package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConfigurationError signals a catalog misconfiguration that makes costing
// impossible, e.g. a bundle SKU with no component rows. Not retryable until
// an operator fixes the catalog.
type ConfigurationError struct {
	SKU    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.SKU, e.Reason)
}

// InsufficientStockError carries the SKU and the quantity that could not be
// covered by the remaining, non-voided receipt layers.
type InsufficientStockError struct {
	SKU       string
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s, short by %s",
		e.SKU, e.Requested.String(), e.Shortfall.String())
}

// DataIntegrityError marks a ledger record that violates a structural
// invariant (qty_remaining > qty_received, negative quantities). The record
// must be investigated, never silently clamped.
type DataIntegrityError struct {
	SKU     string
	LayerID int
	Detail  string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation on layer %d (sku %s): %s", e.LayerID, e.SKU, e.Detail)
}
