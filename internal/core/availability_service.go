package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AvailabilityService computes on-hand, reserved, and available quantities on
// demand. It is a pure read with no locking: relative to concurrent writers
// it is eventually consistent, which the dashboard tolerates.
type AvailabilityService interface {
	ComputeAvailability(ctx context.Context) (*Availability, error)
}

type availabilityService struct {
	pool     *pgxpool.Pool
	resolver BundleResolver
}

func NewAvailabilityService(pool *pgxpool.Pool, resolver BundleResolver) AvailabilityService {
	return &availabilityService{pool: pool, resolver: resolver}
}

func (s *availabilityService) ComputeAvailability(ctx context.Context) (*Availability, error) {
	onHand, err := s.loadOnHand(ctx)
	if err != nil {
		return nil, err
	}

	lines, err := s.loadOpenLines(ctx)
	if err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(lines))
	for _, l := range lines {
		skus = append(skus, l.SKU)
	}
	resolved, err := s.resolver.ResolveAll(ctx, skus)
	if err != nil {
		return nil, err
	}

	reserved := AccumulateReserved(lines, resolved)

	available := make(map[string]decimal.Decimal, len(onHand))
	for sku, qty := range onHand {
		available[sku] = qty.Sub(reservedOrZero(reserved, sku))
	}
	for sku, qty := range reserved {
		if _, ok := available[sku]; !ok {
			// Reserved with no stock at all: oversold, shown as negative.
			available[sku] = qty.Neg()
		}
	}

	return &Availability{OnHand: onHand, Reserved: reserved, Available: available}, nil
}

// AccumulateReserved sums bundle-exploded quantities of the given open order
// lines into per-component reserved totals. Bundle SKUs themselves never
// accumulate a reserved quantity; their demand lands on their components.
// Uses the same eligibility rule as COGS allocation (unshipped, not
// cancelled), so availability and costing never disagree about which orders
// count.
func AccumulateReserved(lines []OrderLine, resolved map[string][]BundleComponent) map[string]decimal.Decimal {
	reserved := make(map[string]decimal.Decimal)
	for _, line := range lines {
		if !line.CountsAsReserved() || line.SKU == "" || !line.Quantity.IsPositive() {
			continue
		}
		for _, comp := range resolved[line.SKU] {
			qty := comp.QtyPerUnit.Mul(line.Quantity)
			reserved[comp.ComponentSKU] = reservedOrZero(reserved, comp.ComponentSKU).Add(qty)
		}
	}
	return reserved
}

// BundleBuildable returns how many complete bundle sets the given on-hand
// quantities support: the minimum over floor(onHand[c] / qtyPerUnit).
func BundleBuildable(onHand map[string]decimal.Decimal, components []BundleComponent) decimal.Decimal {
	if len(components) == 0 {
		return decimal.Zero
	}
	var sets decimal.Decimal
	for i, comp := range components {
		if !comp.QtyPerUnit.IsPositive() {
			return decimal.Zero
		}
		have, ok := onHand[comp.ComponentSKU]
		if !ok || !have.IsPositive() {
			return decimal.Zero
		}
		buildable := have.Div(comp.QtyPerUnit).Floor()
		if i == 0 || buildable.LessThan(sets) {
			sets = buildable
		}
	}
	return sets
}

func reservedOrZero(m map[string]decimal.Decimal, sku string) decimal.Decimal {
	if v, ok := m[sku]; ok {
		return v
	}
	return decimal.Zero
}

func (s *availabilityService) loadOnHand(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sku, COALESCE(SUM(qty_remaining), 0)
		FROM receipt_layers
		WHERE NOT voided
		GROUP BY sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query on-hand quantities: %w", err)
	}
	defer rows.Close()

	onHand := make(map[string]decimal.Decimal)
	for rows.Next() {
		var sku string
		var qty decimal.Decimal
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan on-hand row: %w", err)
		}
		onHand[sku] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating on-hand rows: %w", err)
	}
	return onHand, nil
}

func (s *availabilityService) loadOpenLines(ctx context.Context) ([]OrderLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, sku, quantity, created_at, shipped_at, cancelled
		FROM sales_orders
		WHERE deleted_at IS NULL AND shipped_at IS NULL AND NOT cancelled
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.OrderID, &l.SKU, &l.Quantity, &l.CreatedAt, &l.ShippedAt, &l.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan open order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open order lines: %w", err)
	}
	return lines, nil
}
