package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"seller-ops/internal/cache"
	"seller-ops/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const availabilityCacheKey = "availability:snapshot"

type appService struct {
	pool         *pgxpool.Pool
	stock        core.StockService
	cogs         core.CogsService
	availability core.AvailabilityService
	batches      core.ImportBatchService
	reporting    core.ReportingService
	resolver     core.BundleResolver
	cache        cache.AvailabilityCache
	cacheTTL     time.Duration
	log          *logrus.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	stock core.StockService,
	cogs core.CogsService,
	availability core.AvailabilityService,
	batches core.ImportBatchService,
	reporting core.ReportingService,
	resolver core.BundleResolver,
	availCache cache.AvailabilityCache,
	cacheTTL time.Duration,
	log *logrus.Logger,
) ApplicationService {
	if availCache == nil {
		availCache = cache.NoopAvailabilityCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &appService{
		pool:         pool,
		stock:        stock,
		cogs:         cogs,
		availability: availability,
		batches:      batches,
		reporting:    reporting,
		resolver:     resolver,
		cache:        availCache,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// invalidateAvailability drops the cached snapshot after any write that moves
// stock or reservations. Cache errors are logged, never surfaced.
func (s *appService) invalidateAvailability(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, availabilityCacheKey); err != nil {
		s.log.WithError(err).Warn("failed to invalidate availability cache")
	}
}

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*LayerResult, error) {
	receivedAt, err := parseTimestamp(req.ReceivedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid received_at: %w", err)
	}

	layer, err := s.stock.ReceiveStock(ctx, req.SKU, req.Name, req.Quantity, req.UnitCost,
		receivedAt, core.LayerStockIn)
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx)
	return &LayerResult{Layer: layer}, nil
}

func (s *appService) VoidLayer(ctx context.Context, layerID int) error {
	if err := s.stock.VoidLayer(ctx, layerID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx)
	return nil
}

func (s *appService) ListLayers(ctx context.Context, sku string) (*LayerListResult, error) {
	layers, err := s.stock.ListLayers(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &LayerListResult{SKU: sku, Layers: layers}, nil
}

func (s *appService) ListItems(ctx context.Context) (*ItemListResult, error) {
	items, err := s.stock.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return &ItemListResult{Items: items}, nil
}

func (s *appService) DefineBundle(ctx context.Context, req DefineBundleRequest) error {
	components := make([]core.BundleComponent, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, core.BundleComponent{
			ComponentSKU: c.SKU,
			QtyPerUnit:   c.QtyPerUnit,
		})
	}
	if err := s.stock.DefineBundle(ctx, req.SKU, req.Name, components); err != nil {
		return err
	}
	s.invalidateAvailability(ctx)
	return nil
}

func (s *appService) GetBundle(ctx context.Context, sku string) (*BundleResult, error) {
	components, err := s.resolver.ResolveComponents(ctx, sku)
	if err != nil {
		return nil, err
	}

	onHand := make(map[string]decimal.Decimal, len(components))
	for _, c := range components {
		var qty decimal.Decimal
		err := s.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(qty_remaining), 0)
			FROM receipt_layers WHERE sku = $1 AND NOT voided
		`, c.ComponentSKU).Scan(&qty)
		if err != nil {
			return nil, fmt.Errorf("failed to load on-hand for %s: %w", c.ComponentSKU, err)
		}
		onHand[c.ComponentSKU] = qty
	}

	return &BundleResult{
		SKU:        sku,
		Components: components,
		Buildable:  core.BundleBuildable(onHand, components),
	}, nil
}

func (s *appService) AllocateOrder(ctx context.Context, orderID, sku string) (*core.AllocationResult, error) {
	line, err := s.loadOrderLine(ctx, orderID, sku)
	if err != nil {
		return nil, err
	}

	result, err := s.cogs.ApplyCOGS(ctx, *line)
	if err != nil {
		return nil, err
	}
	if result.Outcome == core.OutcomeAllocated {
		s.invalidateAvailability(ctx)
	}
	return result, nil
}

func (s *appService) RunCOGSBatch(ctx context.Context, fromDate, toDate string) (*core.BatchResult, error) {
	from, to, err := parseDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}

	result, err := s.cogs.ApplyCOGSBatch(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if result.Successful > 0 {
		s.invalidateAvailability(ctx)
	}
	return result, nil
}

func (s *appService) ReverseOrder(ctx context.Context, orderID, sku string) (*core.AllocationResult, error) {
	result, err := s.cogs.ReverseCOGS(ctx, orderID, sku)
	if err != nil {
		return nil, err
	}
	if result.Outcome == core.OutcomeReversed {
		s.invalidateAvailability(ctx)
	}
	return result, nil
}

func (s *appService) ListAllocations(ctx context.Context, orderID string) (*AllocationListResult, error) {
	allocations, err := s.cogs.ListAllocations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &AllocationListResult{OrderID: orderID, Allocations: allocations}, nil
}

func (s *appService) GetAvailability(ctx context.Context) (*core.Availability, error) {
	if cached, ok, err := s.cache.Get(ctx, availabilityCacheKey); err != nil {
		s.log.WithError(err).Warn("availability cache read failed")
	} else if ok {
		return cached, nil
	}

	avail, err := s.availability.ComputeAvailability(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, availabilityCacheKey, avail, s.cacheTTL); err != nil {
		s.log.WithError(err).Warn("availability cache write failed")
	}
	return avail, nil
}

func (s *appService) ImportOrders(ctx context.Context, req ImportOrdersRequest) (*ImportResult, error) {
	batch, err := s.batches.CreateBatch(ctx, core.BatchSales, hashRows(req.Rows), req.Notes)
	if err != nil {
		return nil, err
	}

	err = s.withBatch(ctx, batch.ID, len(req.Rows), func(tx pgx.Tx) error {
		for _, row := range req.Rows {
			orderedAt, err := parseTimestamp(row.OrderedAt)
			if err != nil {
				return fmt.Errorf("order %s: invalid ordered_at: %w", row.OrderID, err)
			}
			var shippedAt *time.Time
			if row.ShippedAt != "" {
				ts, err := time.Parse(time.RFC3339, row.ShippedAt)
				if err != nil {
					return fmt.Errorf("order %s: invalid shipped_at: %w", row.OrderID, err)
				}
				shippedAt = &ts
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO sales_orders (order_id, sku, quantity, created_at, shipped_at, cancelled, batch_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, row.OrderID, row.SKU, row.Quantity, orderedAt, shippedAt, row.Cancelled, batch.ID)
			if err != nil {
				return fmt.Errorf("order %s: %w", row.OrderID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx)
	return &ImportResult{Batch: batch, RowCount: len(req.Rows)}, nil
}

func (s *appService) ImportAdSpend(ctx context.Context, req ImportAdSpendRequest) (*ImportResult, error) {
	batch, err := s.batches.CreateBatch(ctx, core.BatchAdSpend, hashRows(req.Rows), req.Notes)
	if err != nil {
		return nil, err
	}

	err = s.withBatch(ctx, batch.ID, len(req.Rows), func(tx pgx.Tx) error {
		for i, row := range req.Rows {
			spendDate, err := time.Parse("2006-01-02", row.SpendDate)
			if err != nil {
				return fmt.Errorf("row %d: invalid spend_date: %w", i, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO ad_spend_entries (batch_id, spend_date, campaign, amount)
				VALUES ($1, $2, $3, $4)
			`, batch.ID, spendDate, row.Campaign, row.Amount)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ImportResult{Batch: batch, RowCount: len(req.Rows)}, nil
}

func (s *appService) ImportWallet(ctx context.Context, req ImportWalletRequest) (*ImportResult, error) {
	batch, err := s.batches.CreateBatch(ctx, core.BatchWallet, hashRows(req.Rows), req.Notes)
	if err != nil {
		return nil, err
	}

	err = s.withBatch(ctx, batch.ID, len(req.Rows), func(tx pgx.Tx) error {
		for i, row := range req.Rows {
			occurredAt, err := time.Parse(time.RFC3339, row.OccurredAt)
			if err != nil {
				return fmt.Errorf("row %d: invalid occurred_at: %w", i, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO wallet_entries (batch_id, occurred_at, entry_type, amount)
				VALUES ($1, $2, $3, $4)
			`, batch.ID, occurredAt, row.EntryType, row.Amount)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ImportResult{Batch: batch, RowCount: len(req.Rows)}, nil
}

// withBatch runs insert inside one transaction and settles the batch record:
// success on commit, failed with the error message otherwise.
func (s *appService) withBatch(ctx context.Context, batchID string, rowCount int, insert func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insert(tx); err != nil {
		if markErr := s.batches.MarkFailed(ctx, batchID, err.Error()); markErr != nil {
			s.log.WithError(markErr).WithField("batch_id", batchID).Error("failed to mark batch failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if markErr := s.batches.MarkFailed(ctx, batchID, err.Error()); markErr != nil {
			s.log.WithError(markErr).WithField("batch_id", batchID).Error("failed to mark batch failed")
		}
		return fmt.Errorf("failed to commit import: %w", err)
	}

	return s.batches.MarkSuccess(ctx, batchID, rowCount)
}

func (s *appService) GetBatch(ctx context.Context, batchID string) (*core.ImportBatch, error) {
	return s.batches.GetBatch(ctx, batchID)
}

func (s *appService) ListBatches(ctx context.Context, kind string) ([]core.ImportBatch, error) {
	return s.batches.ListBatches(ctx, core.BatchKind(kind))
}

func (s *appService) RollbackBatch(ctx context.Context, batchID string) error {
	if err := s.batches.Rollback(ctx, batchID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx)
	return nil
}

func (s *appService) PurgeBatch(ctx context.Context, batchID string) error {
	if err := s.batches.Purge(ctx, batchID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx)
	return nil
}

func (s *appService) GetInventoryValuation(ctx context.Context) ([]core.ValuationLine, error) {
	return s.reporting.GetInventoryValuation(ctx)
}

func (s *appService) GetCogsSummary(ctx context.Context, fromDate, toDate string) (*core.CogsSummary, error) {
	from, to, err := parseDateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return s.reporting.GetCogsSummary(ctx, from, to)
}

func (s *appService) loadOrderLine(ctx context.Context, orderID, sku string) (*core.OrderLine, error) {
	var line core.OrderLine
	err := s.pool.QueryRow(ctx, `
		SELECT order_id, sku, quantity, created_at, shipped_at, cancelled
		FROM sales_orders
		WHERE order_id = $1 AND sku = $2 AND deleted_at IS NULL
	`, orderID, sku).Scan(&line.OrderID, &line.SKU, &line.Quantity, &line.CreatedAt,
		&line.ShippedAt, &line.Cancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order line %s/%s not found", orderID, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order line %s/%s: %w", orderID, sku, err)
	}
	return &line, nil
}

// parseDateRange converts inclusive YYYY-MM-DD bounds into the half-open
// [from, to) timestamp range used by the services.
func parseDateRange(fromDate, toDate string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: %w", fromDate, err)
	}
	to, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: %w", toDate, err)
	}
	to = to.AddDate(0, 0, 1)
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date %q precedes from date %q", toDate, fromDate)
	}
	return from, to, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, value)
}

// hashRows fingerprints an import payload for duplicate detection. JSON
// marshalling of the typed rows is stable for a given payload.
func hashRows(rows any) string {
	payload, err := json.Marshal(rows)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
