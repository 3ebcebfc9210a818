package app

import "github.com/shopspring/decimal"

// ReceiveStockRequest is the input for recording a stock receipt.
type ReceiveStockRequest struct {
	SKU        string          `json:"sku" validate:"required"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReceivedAt string          `json:"received_at"` // RFC 3339, empty means now
}

// DefineBundleRequest registers a bundle SKU with its component list.
type DefineBundleRequest struct {
	SKU        string                 `json:"sku" validate:"required"`
	Name       string                 `json:"name"`
	Components []BundleComponentInput `json:"components" validate:"required,min=1,dive"`
}

// BundleComponentInput is one component line within a DefineBundleRequest.
type BundleComponentInput struct {
	SKU        string          `json:"sku" validate:"required"`
	QtyPerUnit decimal.Decimal `json:"qty_per_unit" validate:"required"`
}

// ImportOrdersRequest bulk-loads sales order lines as one batch.
type ImportOrdersRequest struct {
	Notes string          `json:"notes"`
	Rows  []OrderRowInput `json:"rows" validate:"required,min=1,dive"`
}

// OrderRowInput is one sales order line within an ImportOrdersRequest.
type OrderRowInput struct {
	OrderID   string          `json:"order_id" validate:"required"`
	SKU       string          `json:"sku" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	OrderedAt string          `json:"ordered_at"` // RFC 3339, empty means now
	ShippedAt string          `json:"shipped_at"` // RFC 3339, empty means not shipped
	Cancelled bool            `json:"cancelled"`
}

// ImportAdSpendRequest bulk-loads advertising spend rows as one batch.
type ImportAdSpendRequest struct {
	Notes string            `json:"notes"`
	Rows  []AdSpendRowInput `json:"rows" validate:"required,min=1,dive"`
}

// AdSpendRowInput is one spend row within an ImportAdSpendRequest.
type AdSpendRowInput struct {
	SpendDate string          `json:"spend_date" validate:"required"` // YYYY-MM-DD
	Campaign  string          `json:"campaign"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
}

// ImportWalletRequest bulk-loads marketplace wallet rows as one batch.
type ImportWalletRequest struct {
	Notes string           `json:"notes"`
	Rows  []WalletRowInput `json:"rows" validate:"required,min=1,dive"`
}

// WalletRowInput is one wallet movement within an ImportWalletRequest.
type WalletRowInput struct {
	OccurredAt string          `json:"occurred_at" validate:"required"` // RFC 3339
	EntryType  string          `json:"entry_type" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}
