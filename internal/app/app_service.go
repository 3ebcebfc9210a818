package app

import (
	"context"

	"seller-ops/internal/core"
)

// ApplicationService is the single interface all adapters (Web, CLI) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// ReceiveStock records a stock receipt as a new FIFO layer, creating
	// the item on first reference.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*LayerResult, error)

	// VoidLayer excludes a receipt layer from allocation and on-hand math.
	VoidLayer(ctx context.Context, layerID int) error

	// ListLayers returns all receipt layers for a SKU, oldest first.
	ListLayers(ctx context.Context, sku string) (*LayerListResult, error)

	// ListItems returns the item catalog.
	ListItems(ctx context.Context) (*ItemListResult, error)

	// DefineBundle registers or replaces a bundle's component list.
	DefineBundle(ctx context.Context, req DefineBundleRequest) error

	// GetBundle returns a bundle's components and how many complete units
	// current stock could assemble.
	GetBundle(ctx context.Context, sku string) (*BundleResult, error)

	// AllocateOrder applies COGS to one shipped order line, looked up by
	// order id and SKU. Repeat calls are reported as skipped.
	AllocateOrder(ctx context.Context, orderID, sku string) (*core.AllocationResult, error)

	// RunCOGSBatch applies COGS to every order line shipped within the
	// date range [from, to), dates given as YYYY-MM-DD.
	RunCOGSBatch(ctx context.Context, fromDate, toDate string) (*core.BatchResult, error)

	// ReverseOrder reverses a previous allocation, restoring stock.
	ReverseOrder(ctx context.Context, orderID, sku string) (*core.AllocationResult, error)

	// ListAllocations returns the allocation rows recorded for an order.
	ListAllocations(ctx context.Context, orderID string) (*AllocationListResult, error)

	// GetAvailability returns the on-hand / reserved / available snapshot,
	// served from cache when fresh.
	GetAvailability(ctx context.Context) (*core.Availability, error)

	// ImportOrders bulk-loads sales order lines under a new import batch.
	ImportOrders(ctx context.Context, req ImportOrdersRequest) (*ImportResult, error)

	// ImportAdSpend bulk-loads advertising spend rows under a new batch.
	ImportAdSpend(ctx context.Context, req ImportAdSpendRequest) (*ImportResult, error)

	// ImportWallet bulk-loads marketplace wallet rows under a new batch.
	ImportWallet(ctx context.Context, req ImportWalletRequest) (*ImportResult, error)

	// GetBatch returns one import batch record.
	GetBatch(ctx context.Context, batchID string) (*core.ImportBatch, error)

	// ListBatches returns import batches, optionally filtered by kind.
	ListBatches(ctx context.Context, kind string) ([]core.ImportBatch, error)

	// RollbackBatch soft-deletes a batch's imported rows.
	RollbackBatch(ctx context.Context, batchID string) error

	// PurgeBatch hard-deletes a batch and its imported rows.
	PurgeBatch(ctx context.Context, batchID string) error

	// GetInventoryValuation returns current stock value per SKU.
	GetInventoryValuation(ctx context.Context) ([]core.ValuationLine, error)

	// GetCogsSummary returns COGS net of reversals for a date range,
	// grouped by the SKU as sold. Dates are YYYY-MM-DD.
	GetCogsSummary(ctx context.Context, fromDate, toDate string) (*core.CogsSummary, error)
}
