package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ValuationLine is one SKU's position in the inventory valuation report:
// remaining quantity across non-voided layers, valued at layer cost.
type ValuationLine struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	QtyOnHand   decimal.Decimal `json:"qty_on_hand"`
	Value       decimal.Decimal `json:"value"`
	AvgUnitCost decimal.Decimal `json:"avg_unit_cost"`
}

// CogsSummaryLine aggregates allocated cost per sold SKU over a period.
// Reversals subtract, so a fully returned order nets to zero.
type CogsSummaryLine struct {
	SKU    string          `json:"sku"`
	Orders int             `json:"orders"`
	Qty    decimal.Decimal `json:"qty"`
	Amount decimal.Decimal `json:"amount"`
}

// CogsSummary is the COGS report for one period.
type CogsSummary struct {
	From  time.Time         `json:"from"`
	To    time.Time         `json:"to"`
	Lines []CogsSummaryLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

// ReportingService provides read-only reporting queries over the inventory
// ledger and the allocation history.
type ReportingService interface {
	// GetInventoryValuation returns the current stock value per SKU,
	// ordered by SKU.
	GetInventoryValuation(ctx context.Context) ([]ValuationLine, error)

	// GetCogsSummary aggregates COGS allocations whose created_at falls in
	// [from, to), net of reversals, grouped by the SKU as sold.
	GetCogsSummary(ctx context.Context, from, to time.Time) (*CogsSummary, error)
}

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

func (s *reportingService) GetInventoryValuation(ctx context.Context) ([]ValuationLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rl.sku,
		       COALESCE(ii.name, rl.sku),
		       COALESCE(SUM(rl.qty_remaining), 0)                AS qty_on_hand,
		       COALESCE(SUM(rl.qty_remaining * rl.unit_cost), 0) AS value
		FROM receipt_layers rl
		LEFT JOIN inventory_items ii ON ii.sku = rl.sku
		WHERE NOT rl.voided
		GROUP BY rl.sku, ii.name
		ORDER BY rl.sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory valuation: %w", err)
	}
	defer rows.Close()

	var lines []ValuationLine
	for rows.Next() {
		var l ValuationLine
		if err := rows.Scan(&l.SKU, &l.Name, &l.QtyOnHand, &l.Value); err != nil {
			return nil, fmt.Errorf("failed to scan valuation line: %w", err)
		}
		if l.QtyOnHand.IsPositive() {
			l.AvgUnitCost = l.Value.Div(l.QtyOnHand)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating valuation lines: %w", err)
	}
	return lines, nil
}

func (s *reportingService) GetCogsSummary(ctx context.Context, from, to time.Time) (*CogsSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT line_sku,
		       COUNT(DISTINCT order_id),
		       COALESCE(SUM(CASE WHEN reversal THEN -qty    ELSE qty    END), 0) AS qty,
		       COALESCE(SUM(CASE WHEN reversal THEN -amount ELSE amount END), 0) AS amount
		FROM cogs_allocations
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY line_sku
		ORDER BY line_sku
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query cogs summary: %w", err)
	}
	defer rows.Close()

	summary := &CogsSummary{From: from, To: to, Total: decimal.Zero}
	for rows.Next() {
		var l CogsSummaryLine
		if err := rows.Scan(&l.SKU, &l.Orders, &l.Qty, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan cogs summary line: %w", err)
		}
		summary.Lines = append(summary.Lines, l)
		summary.Total = summary.Total.Add(l.Amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cogs summary lines: %w", err)
	}
	return summary, nil
}
