package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LayerDraw is one planned take from a receipt layer.
type LayerDraw struct {
	LayerID  int             `json:"layer_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Amount returns the cost of this draw (qty × layer unit cost).
func (d LayerDraw) Amount() decimal.Decimal {
	return d.Qty.Mul(d.UnitCost)
}

// AllocationPlan is the outcome of FIFO planning for one SKU: which layers
// to debit, by how much, and the weighted total cost.
type AllocationPlan struct {
	SKU       string          `json:"sku"`
	Draws     []LayerDraw     `json:"draws"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// PlanFIFO computes the oldest-first consumption of need units from the given
// candidate layers. Layers must already be filtered to non-voided rows with
// remaining quantity and ordered by received_at then id; the planner trusts
// that order so repeated runs over identical data produce identical plans.
//
// The plan is pure: nothing is mutated. Callers apply it inside a transaction
// via applyPlan so that all decrements land atomically or not at all.
func PlanFIFO(sku string, layers []ReceiptLayer, need decimal.Decimal) (*AllocationPlan, error) {
	if need.IsNegative() {
		return nil, fmt.Errorf("allocation quantity for %s must be non-negative, got %s", sku, need)
	}

	plan := &AllocationPlan{SKU: sku, TotalCost: decimal.Zero}
	outstanding := need

	for _, layer := range layers {
		if layer.Voided {
			continue
		}
		if layer.QtyRemaining.IsNegative() || layer.QtyRemaining.GreaterThan(layer.QtyReceived) {
			return nil, &DataIntegrityError{
				SKU:     sku,
				LayerID: layer.ID,
				Detail: fmt.Sprintf("qty_remaining %s outside [0, qty_received %s]",
					layer.QtyRemaining, layer.QtyReceived),
			}
		}
		if outstanding.IsZero() {
			break
		}
		if layer.QtyRemaining.IsZero() {
			continue
		}

		take := layer.QtyRemaining
		if take.GreaterThan(outstanding) {
			take = outstanding
		}
		draw := LayerDraw{LayerID: layer.ID, Qty: take, UnitCost: layer.UnitCost}
		plan.Draws = append(plan.Draws, draw)
		plan.TotalCost = plan.TotalCost.Add(draw.Amount())
		outstanding = outstanding.Sub(take)
	}

	if outstanding.IsPositive() {
		return nil, &InsufficientStockError{SKU: sku, Requested: need, Shortfall: outstanding}
	}
	return plan, nil
}

// lockLayersForUpdate loads the FIFO candidate layers for a SKU inside the
// caller's transaction, locking them so the check-then-consume sequence
// cannot race with a concurrent writer. Order: received_at ASC, id ASC
// (id breaks receive-timestamp ties deterministically).
func lockLayersForUpdate(ctx context.Context, tx pgx.Tx, sku string) ([]ReceiptLayer, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, sku, received_at, qty_received, qty_remaining, unit_cost, reference_type, voided, created_at
		FROM receipt_layers
		WHERE sku = $1 AND NOT voided AND qty_remaining > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE
	`, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to lock receipt layers for %s: %w", sku, err)
	}
	defer rows.Close()

	var layers []ReceiptLayer
	for rows.Next() {
		var l ReceiptLayer
		if err := rows.Scan(&l.ID, &l.SKU, &l.ReceivedAt, &l.QtyReceived, &l.QtyRemaining,
			&l.UnitCost, &l.Reference, &l.Voided, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt layers for %s: %w", sku, err)
	}
	return layers, nil
}

// applyPlan debits every planned layer within the caller's transaction.
// The WHERE guard re-checks qty_remaining so a plan computed against stale
// rows can never push a layer negative.
func applyPlan(ctx context.Context, tx pgx.Tx, plan *AllocationPlan) error {
	for _, draw := range plan.Draws {
		tag, err := tx.Exec(ctx, `
			UPDATE receipt_layers
			SET qty_remaining = qty_remaining - $1
			WHERE id = $2 AND NOT voided AND qty_remaining >= $1
		`, draw.Qty, draw.LayerID)
		if err != nil {
			return fmt.Errorf("failed to debit layer %d: %w", draw.LayerID, err)
		}
		if tag.RowsAffected() == 0 {
			return &DataIntegrityError{
				SKU:     plan.SKU,
				LayerID: draw.LayerID,
				Detail:  fmt.Sprintf("planned draw of %s no longer applies", draw.Qty),
			}
		}
	}
	return nil
}

// allocateFIFO locks, plans, and debits in one step. It only makes sense
// inside a transaction: on error the caller's rollback undoes any partial
// decrement, keeping allocate-and-commit a single operation.
func allocateFIFO(ctx context.Context, tx pgx.Tx, sku string, need decimal.Decimal) (*AllocationPlan, error) {
	layers, err := lockLayersForUpdate(ctx, tx, sku)
	if err != nil {
		return nil, err
	}
	plan, err := PlanFIFO(sku, layers, need)
	if err != nil {
		return nil, err
	}
	if err := applyPlan(ctx, tx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
