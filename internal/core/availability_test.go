package core_test

import (
	"testing"

	"seller-ops/internal/core"

	"github.com/shopspring/decimal"
)

func selfResolved(skus ...string) map[string][]core.BundleComponent {
	m := make(map[string][]core.BundleComponent)
	for _, sku := range skus {
		m[sku] = []core.BundleComponent{{ComponentSKU: sku, QtyPerUnit: decimal.NewFromInt(1)}}
	}
	return m
}

func openLine(orderID, sku string, qty int64) core.OrderLine {
	return core.OrderLine{
		OrderID:   orderID,
		SKU:       sku,
		Quantity:  decimal.NewFromInt(qty),
		CreatedAt: day(1),
	}
}

func TestAccumulateReserved_BundleExplosion(t *testing.T) {
	resolved := map[string][]core.BundleComponent{
		"#B": {
			{ComponentSKU: "A", QtyPerUnit: decimal.NewFromInt(1)},
			{ComponentSKU: "C", QtyPerUnit: decimal.NewFromInt(2)},
		},
	}
	lines := []core.OrderLine{openLine("SO-1", "#B", 10)}

	reserved := core.AccumulateReserved(lines, resolved)

	if !reserved["A"].Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected reserved[A]=10, got %s", reserved["A"])
	}
	if !reserved["C"].Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected reserved[C]=20, got %s", reserved["C"])
	}
	if _, ok := reserved["#B"]; ok {
		t.Error("Bundle SKU itself must never accumulate a reserved quantity")
	}
}

func TestAccumulateReserved_ExcludesShippedAndCancelled(t *testing.T) {
	shippedAt := day(5)
	shipped := openLine("SO-1", "A", 4)
	shipped.ShippedAt = &shippedAt
	cancelled := openLine("SO-2", "A", 3)
	cancelled.Cancelled = true
	open := openLine("SO-3", "A", 2)

	reserved := core.AccumulateReserved(
		[]core.OrderLine{shipped, cancelled, open}, selfResolved("A"))

	if !reserved["A"].Equal(decimal.NewFromInt(2)) {
		t.Errorf("Only the open order counts: expected 2, got %s", reserved["A"])
	}
}

func TestAccumulateReserved_IgnoresInvalidLines(t *testing.T) {
	noSKU := openLine("SO-1", "", 5)
	zeroQty := openLine("SO-2", "A", 0)

	reserved := core.AccumulateReserved([]core.OrderLine{noSKU, zeroQty}, selfResolved("A"))
	if len(reserved) != 0 {
		t.Errorf("Expected no reservations, got %v", reserved)
	}
}

func TestBundleBuildable(t *testing.T) {
	onHand := map[string]decimal.Decimal{
		"A": decimal.NewFromInt(3022),
		"C": decimal.NewFromInt(955),
	}
	components := []core.BundleComponent{
		{ComponentSKU: "A", QtyPerUnit: decimal.NewFromInt(1)},
		{ComponentSKU: "C", QtyPerUnit: decimal.NewFromInt(1)},
	}

	sets := core.BundleBuildable(onHand, components)
	if !sets.Equal(decimal.NewFromInt(955)) {
		t.Errorf("Expected 955 buildable sets, got %s", sets)
	}
}

func TestBundleBuildable_FractionalComponent(t *testing.T) {
	onHand := map[string]decimal.Decimal{"A": decimal.NewFromInt(10)}
	components := []core.BundleComponent{
		{ComponentSKU: "A", QtyPerUnit: decimal.NewFromFloat(2.5)},
	}

	sets := core.BundleBuildable(onHand, components)
	if !sets.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected floor(10/2.5)=4, got %s", sets)
	}
}

func TestBundleBuildable_MissingComponent(t *testing.T) {
	onHand := map[string]decimal.Decimal{"A": decimal.NewFromInt(10)}
	components := []core.BundleComponent{
		{ComponentSKU: "A", QtyPerUnit: decimal.NewFromInt(1)},
		{ComponentSKU: "C", QtyPerUnit: decimal.NewFromInt(1)},
	}

	if sets := core.BundleBuildable(onHand, components); !sets.IsZero() {
		t.Errorf("Expected 0 sets with a missing component, got %s", sets)
	}
}
