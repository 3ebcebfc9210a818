package core_test

import (
	"context"
	"errors"
	"testing"

	"seller-ops/internal/core"

	"github.com/shopspring/decimal"
)

func TestStock_ReceiveCreatesItemAndLayer(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)

	layer, err := svc.ReceiveStock(ctx, "NEW-SKU", "Brand New Widget",
		decimal.NewFromInt(10), decimal.NewFromFloat(3.25), day(1), core.LayerOpeningBalance)
	if err != nil {
		t.Fatalf("ReceiveStock failed: %v", err)
	}
	if layer.ID == 0 {
		t.Error("Expected layer id assigned")
	}
	if !layer.QtyRemaining.Equal(layer.QtyReceived) {
		t.Errorf("New layer must start full: %s of %s", layer.QtyRemaining, layer.QtyReceived)
	}

	items, err := svc.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 || items[0].SKU != "NEW-SKU" || items[0].IsBundle {
		t.Errorf("Expected one regular item NEW-SKU, got %+v", items)
	}
}

func TestStock_RejectsInvalidReceipts(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)

	if _, err := svc.ReceiveStock(ctx, "", "", decimal.NewFromInt(1), decimal.Zero, day(1), core.LayerStockIn); err == nil {
		t.Error("Expected error for empty sku")
	}
	if _, err := svc.ReceiveStock(ctx, "A", "", decimal.Zero, decimal.Zero, day(1), core.LayerStockIn); err == nil {
		t.Error("Expected error for zero quantity")
	}
	if _, err := svc.ReceiveStock(ctx, "A", "", decimal.NewFromInt(1), decimal.NewFromInt(-1), day(1), core.LayerStockIn); err == nil {
		t.Error("Expected error for negative cost")
	}
}

func TestStock_BundleCannotBeStocked(t *testing.T) {
	_, stockSvc, _, ctx := setupCostingTestDB(t)

	_, err := stockSvc.ReceiveStock(ctx, "#B", "", decimal.NewFromInt(5), decimal.NewFromInt(10), day(1), core.LayerStockIn)
	var configErr *core.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
}

func TestStock_DefineBundle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)
	resolver := core.NewBundleResolver(pool)

	err := svc.DefineBundle(ctx, "#KIT", "Starter Kit", []core.BundleComponent{
		{ComponentSKU: "A", QtyPerUnit: decimal.NewFromInt(1)},
		{ComponentSKU: "C", QtyPerUnit: decimal.NewFromInt(2)},
	})
	if err != nil {
		t.Fatalf("DefineBundle failed: %v", err)
	}

	components, err := resolver.ResolveComponents(ctx, "#KIT")
	if err != nil {
		t.Fatalf("ResolveComponents failed: %v", err)
	}
	if len(components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(components))
	}

	// Redefinition replaces the component list outright.
	err = svc.DefineBundle(ctx, "#KIT", "", []core.BundleComponent{
		{ComponentSKU: "A", QtyPerUnit: decimal.NewFromInt(3)},
	})
	if err != nil {
		t.Fatalf("Bundle redefinition failed: %v", err)
	}
	components, err = resolver.ResolveComponents(ctx, "#KIT")
	if err != nil {
		t.Fatalf("ResolveComponents failed: %v", err)
	}
	if len(components) != 1 || !components[0].QtyPerUnit.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Expected single component A x3, got %+v", components)
	}
}

func TestStock_DefineBundleRejectsStockedSKU(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)

	if _, err := svc.ReceiveStock(ctx, "A", "", decimal.NewFromInt(5), decimal.NewFromInt(2), day(1), core.LayerStockIn); err != nil {
		t.Fatalf("ReceiveStock failed: %v", err)
	}

	err := svc.DefineBundle(ctx, "A", "", []core.BundleComponent{
		{ComponentSKU: "C", QtyPerUnit: decimal.NewFromInt(1)},
	})
	var configErr *core.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("Expected ConfigurationError for stocked SKU, got %v", err)
	}
}

func TestStock_DefineBundleValidation(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)

	cases := []struct {
		name       string
		sku        string
		components []core.BundleComponent
	}{
		{"no components", "#X", nil},
		{"self reference", "#X", []core.BundleComponent{{ComponentSKU: "#X", QtyPerUnit: decimal.NewFromInt(1)}}},
		{"zero qty", "#X", []core.BundleComponent{{ComponentSKU: "A", QtyPerUnit: decimal.Zero}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.DefineBundle(ctx, tc.sku, "", tc.components); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestStock_VoidedLayerExcludedFromListOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	svc := core.NewStockService(pool)

	l1, err := svc.ReceiveStock(ctx, "A", "", decimal.NewFromInt(5), decimal.NewFromInt(2), day(2), core.LayerStockIn)
	if err != nil {
		t.Fatalf("ReceiveStock failed: %v", err)
	}
	l2, err := svc.ReceiveStock(ctx, "A", "", decimal.NewFromInt(5), decimal.NewFromInt(3), day(1), core.LayerStockIn)
	if err != nil {
		t.Fatalf("ReceiveStock failed: %v", err)
	}
	if err := svc.VoidLayer(ctx, l1.ID); err != nil {
		t.Fatalf("VoidLayer failed: %v", err)
	}

	layers, err := svc.ListLayers(ctx, "A")
	if err != nil {
		t.Fatalf("ListLayers failed: %v", err)
	}
	// Receipt order, not insert order; voided layers stay visible but flagged.
	if len(layers) != 2 || layers[0].ID != l2.ID {
		t.Fatalf("Expected oldest receipt first, got %+v", layers)
	}
	if !layers[1].Voided {
		t.Error("Expected voided flag on first-inserted layer")
	}
	if err := svc.VoidLayer(ctx, 999999); err == nil {
		t.Error("Expected error voiding unknown layer")
	}
}
