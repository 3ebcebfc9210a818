package core_test

import (
	"context"
	"testing"

	"seller-ops/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func TestAvailability_BundleReservation(t *testing.T) {
	pool, stockSvc, _, ctx := setupCostingTestDB(t)
	availSvc := core.NewAvailabilityService(pool, core.NewBundleResolver(pool))

	receiveLayer(t, ctx, stockSvc, "A", 1, 100, 40)
	receiveLayer(t, ctx, stockSvc, "C", 1, 30, 10)

	// Open orders: 5×A direct plus 10×#B (= 10×A + 20×C).
	insertOpenOrder(t, ctx, pool, "SO-1", "A", 5)
	insertOpenOrder(t, ctx, pool, "SO-2", "#B", 10)

	avail, err := availSvc.ComputeAvailability(ctx)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}

	if got := avail.OnHand["A"]; !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected A on hand 100, got %s", got)
	}
	if got := avail.Reserved["A"]; !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected A reserved 15, got %s", got)
	}
	if got := avail.Available["A"]; !got.Equal(decimal.NewFromInt(85)) {
		t.Errorf("Expected A available 85, got %s", got)
	}
	if got := avail.Reserved["C"]; !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected C reserved 20, got %s", got)
	}
	if _, ok := avail.Reserved["#B"]; ok {
		t.Error("Bundle SKU must not appear in reserved totals")
	}
}

func TestAvailability_ShippedAndCancelledExcluded(t *testing.T) {
	pool, stockSvc, cogsSvc, ctx := setupCostingTestDB(t)
	availSvc := core.NewAvailabilityService(pool, core.NewBundleResolver(pool))

	receiveLayer(t, ctx, stockSvc, "A", 1, 100, 40)

	insertOpenOrder(t, ctx, pool, "SO-1", "A", 5)
	shipped := insertShippedOrder(t, ctx, pool, "SO-2", "A", 10, 2)
	_, err := pool.Exec(ctx, `
		INSERT INTO sales_orders (order_id, sku, quantity, created_at, cancelled)
		VALUES ('SO-3', 'A', 7, $1, true)
	`, day(1))
	if err != nil {
		t.Fatalf("Failed to insert cancelled order: %v", err)
	}

	if _, err := cogsSvc.ApplyCOGS(ctx, shipped); err != nil {
		t.Fatalf("ApplyCOGS failed: %v", err)
	}

	avail, err := availSvc.ComputeAvailability(ctx)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}

	// Only the open order reserves; shipping already decremented on-hand.
	if got := avail.Reserved["A"]; !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected reserved 5, got %s", got)
	}
	if got := avail.OnHand["A"]; !got.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Expected on hand 90 after shipment, got %s", got)
	}
	if got := avail.Available["A"]; !got.Equal(decimal.NewFromInt(85)) {
		t.Errorf("Expected available 85, got %s", got)
	}
}

func TestAvailability_OversoldGoesNegative(t *testing.T) {
	pool, stockSvc, _, ctx := setupCostingTestDB(t)
	availSvc := core.NewAvailabilityService(pool, core.NewBundleResolver(pool))

	receiveLayer(t, ctx, stockSvc, "A", 1, 3, 40)
	insertOpenOrder(t, ctx, pool, "SO-1", "A", 10)
	// Reserved-only SKU with no stock at all.
	insertOpenOrder(t, ctx, pool, "SO-2", "C", 4)

	avail, err := availSvc.ComputeAvailability(ctx)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}

	if got := avail.Available["A"]; !got.Equal(decimal.NewFromInt(-7)) {
		t.Errorf("Expected available -7, got %s", got)
	}
	if got := avail.Available["C"]; !got.Equal(decimal.NewFromInt(-4)) {
		t.Errorf("Expected available -4 for stockless SKU, got %s", got)
	}
}

func insertOpenOrder(t *testing.T, ctx context.Context, pool *pgxpool.Pool, orderID, sku string, qty float64) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO sales_orders (order_id, sku, quantity, created_at, cancelled)
		VALUES ($1, $2, $3, $4, false)
	`, orderID, sku, decimal.NewFromFloat(qty), day(1))
	if err != nil {
		t.Fatalf("Failed to insert open order %s: %v", orderID, err)
	}
}
