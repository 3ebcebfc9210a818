package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SkipReason classifies order lines the engine deliberately passed over.
// Skips are reported and counted, never treated as failures.
type SkipReason string

const (
	SkipAlreadyAllocated SkipReason = "already_allocated"
	SkipMissingSKU       SkipReason = "missing_sku"
	SkipInvalidQty       SkipReason = "invalid_qty"
	SkipCancelled        SkipReason = "cancelled"
	SkipNotShipped       SkipReason = "not_shipped"
)

// AllocationOutcome is the per-order result class.
type AllocationOutcome string

const (
	OutcomeAllocated AllocationOutcome = "allocated"
	OutcomeSkipped   AllocationOutcome = "skipped"
	OutcomeFailed    AllocationOutcome = "failed"
	OutcomeReversed  AllocationOutcome = "reversed"
)

// ComponentAllocation is the FIFO result for one exploded component.
type ComponentAllocation struct {
	SKU       string          `json:"sku"`
	Qty       decimal.Decimal `json:"qty"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Draws     []LayerDraw     `json:"draws"`
}

// AllocationResult describes what happened to one order line.
type AllocationResult struct {
	OrderID    string                `json:"order_id"`
	SKU        string                `json:"sku"`
	Outcome    AllocationOutcome     `json:"outcome"`
	SkipReason SkipReason            `json:"skip_reason,omitempty"`
	Error      string                `json:"error,omitempty"`
	Components []ComponentAllocation `json:"components,omitempty"`
	TotalCost  decimal.Decimal       `json:"total_cost"`
}

// FailedOrder carries the per-order error detail inside a batch summary.
type FailedOrder struct {
	OrderID string `json:"order_id"`
	SKU     string `json:"sku"`
	Error   string `json:"error"`
}

// BatchResult is the structured summary of a date-range COGS run. It is
// always returned, even under partial failure.
type BatchResult struct {
	Total      int                `json:"total"`
	Eligible   int                `json:"eligible"`
	Successful int                `json:"successful"`
	Skipped    map[SkipReason]int `json:"skipped"`
	Failed     []FailedOrder      `json:"failed"`
	TotalCost  decimal.Decimal    `json:"total_cost"`
	Results    []AllocationResult `json:"results"`
}

// CogsService applies cost of goods sold to shipped order lines: bundle
// explosion, per-component FIFO consumption, and idempotent allocation rows,
// all committed atomically per order.
type CogsService interface {
	// ApplyCOGS allocates stock for one order line. A repeat call for the
	// same (order, SKU) is reported as skipped and mutates nothing.
	ApplyCOGS(ctx context.Context, line OrderLine) (*AllocationResult, error)

	// ApplyCOGSBatch runs ApplyCOGS over every order line shipped within
	// [from, to), ordered by shipped_at then order id so layer consumption
	// is reproducible. One order's failure never aborts the batch.
	ApplyCOGSBatch(ctx context.Context, from, to time.Time) (*BatchResult, error)

	// ReverseCOGS restores the stock consumed for a previously allocated
	// (order, SKU) pair, writing reversal allocation rows. Layers that can
	// no longer absorb the restore get a synthetic replacement layer at the
	// original unit cost.
	ReverseCOGS(ctx context.Context, orderID, sku string) (*AllocationResult, error)

	// ListAllocations returns all allocation rows for an order.
	ListAllocations(ctx context.Context, orderID string) ([]CogsAllocation, error)
}

type cogsService struct {
	pool     *pgxpool.Pool
	resolver BundleResolver
	log      *logrus.Logger
}

func NewCogsService(pool *pgxpool.Pool, resolver BundleResolver, log *logrus.Logger) CogsService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &cogsService{pool: pool, resolver: resolver, log: log}
}

// classify applies the eligibility rules shared by single and batch runs.
// Empty reason means the line is eligible.
func classify(line OrderLine) SkipReason {
	switch {
	case line.Cancelled:
		return SkipCancelled
	case line.SKU == "":
		return SkipMissingSKU
	case !line.Quantity.IsPositive():
		return SkipInvalidQty
	case !line.Shipped():
		return SkipNotShipped
	}
	return ""
}

func skipped(line OrderLine, reason SkipReason) *AllocationResult {
	return &AllocationResult{
		OrderID:    line.OrderID,
		SKU:        line.SKU,
		Outcome:    OutcomeSkipped,
		SkipReason: reason,
		TotalCost:  decimal.Zero,
	}
}

func failed(line OrderLine, err error) *AllocationResult {
	return &AllocationResult{
		OrderID:   line.OrderID,
		SKU:       line.SKU,
		Outcome:   OutcomeFailed,
		Error:     err.Error(),
		TotalCost: decimal.Zero,
	}
}

func (s *cogsService) ApplyCOGS(ctx context.Context, line OrderLine) (*AllocationResult, error) {
	if reason := classify(line); reason != "" {
		return skipped(line, reason), nil
	}

	// Catalog reads happen outside the allocation transaction: the component
	// table is read-shared and a ConfigurationError must not touch the ledger.
	components, err := s.resolver.ResolveComponents(ctx, line.SKU)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return failed(line, err), nil
		}
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Idempotence claim. The primary key on (order_id, sku, reversal) is the
	// source of truth: a concurrent second writer conflicts here and skips
	// instead of double-consuming.
	var claimed string
	err = tx.QueryRow(ctx, `
		INSERT INTO cogs_applications (order_id, sku, reversal, total_cost)
		VALUES ($1, $2, false, 0)
		ON CONFLICT (order_id, sku, reversal) DO NOTHING
		RETURNING order_id
	`, line.OrderID, line.SKU).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return skipped(line, SkipAlreadyAllocated), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim allocation for order %s: %w", line.OrderID, err)
	}

	result := &AllocationResult{
		OrderID:   line.OrderID,
		SKU:       line.SKU,
		Outcome:   OutcomeAllocated,
		TotalCost: decimal.Zero,
	}

	for _, comp := range components {
		need := comp.QtyPerUnit.Mul(line.Quantity)
		plan, err := allocateFIFO(ctx, tx, comp.ComponentSKU, need)
		if err != nil {
			// Rolling back discards the claim and every component already
			// consumed: a failed order writes nothing.
			var integrityErr *DataIntegrityError
			if errors.As(err, &integrityErr) {
				s.log.WithFields(logrus.Fields{
					"order_id": line.OrderID,
					"sku":      integrityErr.SKU,
					"layer_id": integrityErr.LayerID,
				}).Error(integrityErr.Detail)
			}
			var stockErr *InsufficientStockError
			if errors.As(err, &stockErr) || errors.As(err, &integrityErr) {
				return failed(line, err), nil
			}
			return nil, err
		}

		for _, draw := range plan.Draws {
			_, err := tx.Exec(ctx, `
				INSERT INTO cogs_allocations (order_id, line_sku, sku, layer_id, qty, unit_cost, amount, reversal)
				VALUES ($1, $2, $3, $4, $5, $6, $7, false)
			`, line.OrderID, line.SKU, comp.ComponentSKU, draw.LayerID, draw.Qty, draw.UnitCost, draw.Amount())
			if err != nil {
				return nil, fmt.Errorf("failed to insert allocation row for order %s: %w", line.OrderID, err)
			}
		}

		result.Components = append(result.Components, ComponentAllocation{
			SKU:       comp.ComponentSKU,
			Qty:       need,
			TotalCost: plan.TotalCost,
			Draws:     plan.Draws,
		})
		result.TotalCost = result.TotalCost.Add(plan.TotalCost)
	}

	_, err = tx.Exec(ctx, `
		UPDATE cogs_applications SET total_cost = $1
		WHERE order_id = $2 AND sku = $3 AND NOT reversal
	`, result.TotalCost, line.OrderID, line.SKU)
	if err != nil {
		return nil, fmt.Errorf("failed to record application cost for order %s: %w", line.OrderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation for order %s: %w", line.OrderID, err)
	}
	return result, nil
}

func (s *cogsService) ApplyCOGSBatch(ctx context.Context, from, to time.Time) (*BatchResult, error) {
	lines, err := s.loadShippedLines(ctx, from, to)
	if err != nil {
		// Foundational read failed: this is a run-level failure.
		return nil, err
	}

	allocated, err := s.existingApplications(ctx, lines)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{
		Total:     len(lines),
		Skipped:   make(map[SkipReason]int),
		TotalCost: decimal.Zero,
	}

	for _, line := range lines {
		if reason := classify(line); reason != "" {
			batch.Skipped[reason]++
			batch.Results = append(batch.Results, *skipped(line, reason))
			continue
		}
		batch.Eligible++

		// Fast path only; the in-transaction claim still decides.
		if allocated[applicationKey{line.OrderID, line.SKU}] {
			batch.Skipped[SkipAlreadyAllocated]++
			batch.Results = append(batch.Results, *skipped(line, SkipAlreadyAllocated))
			continue
		}

		res, err := s.ApplyCOGS(ctx, line)
		if err != nil {
			return nil, fmt.Errorf("allocation run aborted at order %s: %w", line.OrderID, err)
		}
		batch.Results = append(batch.Results, *res)

		switch res.Outcome {
		case OutcomeAllocated:
			batch.Successful++
			batch.TotalCost = batch.TotalCost.Add(res.TotalCost)
		case OutcomeSkipped:
			batch.Skipped[res.SkipReason]++
		case OutcomeFailed:
			batch.Failed = append(batch.Failed, FailedOrder{OrderID: line.OrderID, SKU: line.SKU, Error: res.Error})
		}
	}

	s.log.WithFields(logrus.Fields{
		"total":      batch.Total,
		"eligible":   batch.Eligible,
		"successful": batch.Successful,
		"failed":     len(batch.Failed),
	}).Info("cogs batch run complete")
	return batch, nil
}

// loadShippedLines returns order lines shipped within [from, to), in the
// deterministic batch order: shipped_at, then order id, then SKU.
func (s *cogsService) loadShippedLines(ctx context.Context, from, to time.Time) ([]OrderLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, sku, quantity, created_at, shipped_at, cancelled
		FROM sales_orders
		WHERE deleted_at IS NULL AND shipped_at IS NOT NULL AND shipped_at >= $1 AND shipped_at < $2
		ORDER BY shipped_at ASC, order_id ASC, sku ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipped orders: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.OrderID, &l.SKU, &l.Quantity, &l.CreatedAt, &l.ShippedAt, &l.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shipped orders: %w", err)
	}
	return lines, nil
}

type applicationKey struct {
	orderID string
	sku     string
}

// existingApplications bulk-fetches the non-reversal application keys for the
// given lines in bounded chunks, merged client-side.
func (s *cogsService) existingApplications(ctx context.Context, lines []OrderLine) (map[applicationKey]bool, error) {
	orderIDs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.OrderID]; ok {
			continue
		}
		seen[l.OrderID] = struct{}{}
		orderIDs = append(orderIDs, l.OrderID)
	}

	existing := make(map[applicationKey]bool)
	for _, chunk := range chunkSlice(orderIDs, lookupChunkSize) {
		rows, err := s.pool.Query(ctx,
			"SELECT order_id, sku FROM cogs_applications WHERE NOT reversal AND order_id = ANY($1)", chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing applications: %w", err)
		}
		for rows.Next() {
			var key applicationKey
			if err := rows.Scan(&key.orderID, &key.sku); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan application key: %w", err)
			}
			existing[key] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating application keys: %w", err)
		}
	}
	return existing, nil
}

func (s *cogsService) ReverseCOGS(ctx context.Context, orderID, sku string) (*AllocationResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var originalCost decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT total_cost FROM cogs_applications
		WHERE order_id = $1 AND sku = $2 AND NOT reversal
		FOR UPDATE
	`, orderID, sku).Scan(&originalCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no allocation recorded for order %s sku %s", orderID, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application for order %s: %w", orderID, err)
	}

	// Claim the reversal slot; a second reversal attempt conflicts and skips.
	var claimed string
	err = tx.QueryRow(ctx, `
		INSERT INTO cogs_applications (order_id, sku, reversal, total_cost)
		VALUES ($1, $2, true, 0)
		ON CONFLICT (order_id, sku, reversal) DO NOTHING
		RETURNING order_id
	`, orderID, sku).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return &AllocationResult{
			OrderID:    orderID,
			SKU:        sku,
			Outcome:    OutcomeSkipped,
			SkipReason: SkipAlreadyAllocated,
			TotalCost:  decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim reversal for order %s: %w", orderID, err)
	}

	originals, err := s.lineAllocationsInTx(ctx, tx, orderID, sku)
	if err != nil {
		return nil, err
	}

	result := &AllocationResult{
		OrderID:   orderID,
		SKU:       sku,
		Outcome:   OutcomeReversed,
		TotalCost: decimal.Zero,
	}

	for _, alloc := range originals {
		if alloc.Reversal {
			continue
		}

		// Prefer re-opening the layer the stock was drawn from. The guard
		// keeps qty_remaining within qty_received; a voided or over-full
		// layer falls through to a synthetic return layer so the restore
		// can never be lost or understated.
		restoredLayer := alloc.LayerID
		tag, err := tx.Exec(ctx, `
			UPDATE receipt_layers
			SET qty_remaining = qty_remaining + $1
			WHERE id = $2 AND NOT voided AND qty_remaining + $1 <= qty_received
		`, alloc.Qty, alloc.LayerID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore layer %d: %w", alloc.LayerID, err)
		}
		if tag.RowsAffected() == 0 {
			err = tx.QueryRow(ctx, `
				INSERT INTO receipt_layers (sku, received_at, qty_received, qty_remaining, unit_cost, reference_type)
				VALUES ($1, NOW(), $2, $2, $3, $4)
				RETURNING id
			`, alloc.SKU, alloc.Qty, alloc.UnitCost, string(LayerReturn)).Scan(&restoredLayer)
			if err != nil {
				return nil, fmt.Errorf("failed to create return layer for %s: %w", alloc.SKU, err)
			}
			s.log.WithFields(logrus.Fields{
				"order_id":  orderID,
				"sku":       alloc.SKU,
				"layer_id":  alloc.LayerID,
				"new_layer": restoredLayer,
			}).Warn("original layer unavailable, synthesized return layer")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO cogs_allocations (order_id, line_sku, sku, layer_id, qty, unit_cost, amount, reversal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		`, orderID, sku, alloc.SKU, restoredLayer, alloc.Qty, alloc.UnitCost, alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to insert reversal row for order %s: %w", orderID, err)
		}

		result.Components = append(result.Components, ComponentAllocation{
			SKU:       alloc.SKU,
			Qty:       alloc.Qty,
			TotalCost: alloc.Amount,
			Draws:     []LayerDraw{{LayerID: restoredLayer, Qty: alloc.Qty, UnitCost: alloc.UnitCost}},
		})
		result.TotalCost = result.TotalCost.Add(alloc.Amount)
	}

	_, err = tx.Exec(ctx, `
		UPDATE cogs_applications SET total_cost = $1
		WHERE order_id = $2 AND sku = $3 AND reversal
	`, result.TotalCost, orderID, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to record reversal cost for order %s: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reversal for order %s: %w", orderID, err)
	}
	return result, nil
}

func (s *cogsService) lineAllocationsInTx(ctx context.Context, tx pgx.Tx, orderID, lineSKU string) ([]CogsAllocation, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, order_id, line_sku, sku, layer_id, qty, unit_cost, amount, reversal, created_at
		FROM cogs_allocations
		WHERE order_id = $1 AND line_sku = $2
		ORDER BY id
	`, orderID, lineSKU)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for order %s: %w", orderID, err)
	}
	defer rows.Close()
	return scanAllocations(rows, orderID)
}

func (s *cogsService) ListAllocations(ctx context.Context, orderID string) ([]CogsAllocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, line_sku, sku, layer_id, qty, unit_cost, amount, reversal, created_at
		FROM cogs_allocations
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for order %s: %w", orderID, err)
	}
	defer rows.Close()
	return scanAllocations(rows, orderID)
}

func scanAllocations(rows pgx.Rows, orderID string) ([]CogsAllocation, error) {
	var allocations []CogsAllocation
	for rows.Next() {
		var a CogsAllocation
		if err := rows.Scan(&a.ID, &a.OrderID, &a.LineSKU, &a.SKU, &a.LayerID, &a.Qty, &a.UnitCost,
			&a.Amount, &a.Reversal, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations for order %s: %w", orderID, err)
	}
	return allocations, nil
}
