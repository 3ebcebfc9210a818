package app

import (
	"seller-ops/internal/core"

	"github.com/shopspring/decimal"
)

// LayerResult is returned by ReceiveStock.
type LayerResult struct {
	Layer *core.ReceiptLayer `json:"layer"`
}

// LayerListResult is returned by ListLayers.
type LayerListResult struct {
	SKU    string              `json:"sku"`
	Layers []core.ReceiptLayer `json:"layers"`
}

// ItemListResult is returned by ListItems.
type ItemListResult struct {
	Items []core.InventoryItem `json:"items"`
}

// BundleResult is returned by GetBundle.
type BundleResult struct {
	SKU        string                 `json:"sku"`
	Components []core.BundleComponent `json:"components"`
	Buildable  decimal.Decimal        `json:"buildable"`
}

// AllocationListResult is returned by ListAllocations.
type AllocationListResult struct {
	OrderID     string                `json:"order_id"`
	Allocations []core.CogsAllocation `json:"allocations"`
}

// ImportResult is returned by the bulk import operations.
type ImportResult struct {
	Batch    *core.ImportBatch `json:"batch"`
	RowCount int               `json:"row_count"`
}
