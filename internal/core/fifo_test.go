package core_test

import (
	"errors"
	"testing"
	"time"

	"seller-ops/internal/core"

	"github.com/shopspring/decimal"
)

func day(n int) time.Time {
	return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC)
}

func layer(id, dayReceived int, received, remaining, cost float64) core.ReceiptLayer {
	return core.ReceiptLayer{
		ID:           id,
		SKU:          "A",
		ReceivedAt:   day(dayReceived),
		QtyReceived:  decimal.NewFromFloat(received),
		QtyRemaining: decimal.NewFromFloat(remaining),
		UnitCost:     decimal.NewFromFloat(cost),
	}
}

func TestPlanFIFO_OldestFirst(t *testing.T) {
	layers := []core.ReceiptLayer{
		layer(1, 1, 10, 10, 40),
		layer(2, 15, 10, 10, 45),
		layer(3, 30, 10, 10, 50),
	}

	plan, err := core.PlanFIFO("A", layers, decimal.NewFromInt(15))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}

	if len(plan.Draws) != 2 {
		t.Fatalf("Expected 2 draws, got %d", len(plan.Draws))
	}
	if plan.Draws[0].LayerID != 1 || !plan.Draws[0].Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("First draw should take all 10 of layer 1, got layer %d qty %s",
			plan.Draws[0].LayerID, plan.Draws[0].Qty)
	}
	if plan.Draws[1].LayerID != 2 || !plan.Draws[1].Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Second draw should take 5 of layer 2 (not layer 3), got layer %d qty %s",
			plan.Draws[1].LayerID, plan.Draws[1].Qty)
	}
	// 10×40 + 5×45 = 625
	if !plan.TotalCost.Equal(decimal.NewFromInt(625)) {
		t.Errorf("Expected total cost 625, got %s", plan.TotalCost)
	}
}

func TestPlanFIFO_ExactLayerBoundary(t *testing.T) {
	layers := []core.ReceiptLayer{
		layer(1, 1, 10, 10, 40),
		layer(2, 15, 10, 10, 45),
	}

	plan, err := core.PlanFIFO("A", layers, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan.Draws) != 1 {
		t.Fatalf("Expected exactly 1 draw at the layer boundary, got %d", len(plan.Draws))
	}
	if !plan.TotalCost.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected total cost 400, got %s", plan.TotalCost)
	}
}

func TestPlanFIFO_SkipsVoidedAndDrainedLayers(t *testing.T) {
	voided := layer(1, 1, 10, 10, 40)
	voided.Voided = true
	drained := layer(2, 2, 10, 0, 42)
	layers := []core.ReceiptLayer{voided, drained, layer(3, 15, 10, 10, 45)}

	plan, err := core.PlanFIFO("A", layers, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan.Draws) != 1 || plan.Draws[0].LayerID != 3 {
		t.Fatalf("Expected a single draw from layer 3, got %+v", plan.Draws)
	}
}

func TestPlanFIFO_InsufficientStock(t *testing.T) {
	layers := []core.ReceiptLayer{
		layer(1, 1, 10, 10, 40),
		layer(2, 15, 10, 10, 45),
	}

	_, err := core.PlanFIFO("A", layers, decimal.NewFromInt(25))
	var stockErr *core.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if stockErr.SKU != "A" {
		t.Errorf("Expected sku A, got %s", stockErr.SKU)
	}
	if !stockErr.Shortfall.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected shortfall 5, got %s", stockErr.Shortfall)
	}
}

func TestPlanFIFO_FractionalQuantities(t *testing.T) {
	layers := []core.ReceiptLayer{layer(1, 1, 10, 10, 40)}

	plan, err := core.PlanFIFO("A", layers, decimal.NewFromFloat(2.5))
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if !plan.TotalCost.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total cost 100 (2.5 × 40), got %s", plan.TotalCost)
	}
}

func TestPlanFIFO_ZeroNeed(t *testing.T) {
	plan, err := core.PlanFIFO("A", []core.ReceiptLayer{layer(1, 1, 10, 10, 40)}, decimal.Zero)
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	if len(plan.Draws) != 0 || !plan.TotalCost.IsZero() {
		t.Errorf("Zero need must produce an empty plan, got %+v", plan)
	}
}

func TestPlanFIFO_DataIntegrityViolation(t *testing.T) {
	bad := layer(1, 1, 10, 12, 40) // remaining > received
	_, err := core.PlanFIFO("A", []core.ReceiptLayer{bad}, decimal.NewFromInt(5))

	var integrityErr *core.DataIntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("Expected DataIntegrityError, got %v", err)
	}
	if integrityErr.LayerID != 1 {
		t.Errorf("Expected layer 1 in error, got %d", integrityErr.LayerID)
	}
}

func TestPlanFIFO_Deterministic(t *testing.T) {
	layers := []core.ReceiptLayer{
		layer(1, 1, 10, 7, 40),
		layer(2, 1, 10, 3, 45), // same receipt date, later id
		layer(3, 2, 10, 10, 50),
	}
	need := decimal.NewFromInt(12)

	first, err := core.PlanFIFO("A", layers, need)
	if err != nil {
		t.Fatalf("PlanFIFO failed: %v", err)
	}
	second, err := core.PlanFIFO("A", layers, need)
	if err != nil {
		t.Fatalf("PlanFIFO failed on repeat: %v", err)
	}

	if len(first.Draws) != len(second.Draws) {
		t.Fatalf("Plans differ in length: %d vs %d", len(first.Draws), len(second.Draws))
	}
	for i := range first.Draws {
		if first.Draws[i].LayerID != second.Draws[i].LayerID || !first.Draws[i].Qty.Equal(second.Draws[i].Qty) {
			t.Errorf("Draw %d differs between runs: %+v vs %+v", i, first.Draws[i], second.Draws[i])
		}
	}
	if !first.TotalCost.Equal(second.TotalCost) {
		t.Errorf("Total costs differ: %s vs %s", first.TotalCost, second.TotalCost)
	}
}
