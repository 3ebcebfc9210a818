package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService owns the inventory ledger: receipt layers and the item
// records they hang off. Layers are append-only; corrections go through
// VoidLayer rather than deletion so the audit trail survives.
type StockService interface {
	// ReceiveStock records one batch of physical stock as a new receipt
	// layer, creating the inventory item on first reference.
	ReceiveStock(ctx context.Context, sku, name string, qty, unitCost decimal.Decimal,
		receivedAt time.Time, ref LayerReference) (*ReceiptLayer, error)

	// VoidLayer excludes a layer from all allocation and on-hand math.
	VoidLayer(ctx context.Context, layerID int) error

	// ListLayers returns all layers for a SKU, oldest receipt first.
	ListLayers(ctx context.Context, sku string) ([]ReceiptLayer, error)

	// ListItems returns the item catalog known to the ledger.
	ListItems(ctx context.Context) ([]InventoryItem, error)

	// DefineBundle registers sku as a bundle and replaces its component
	// list. A SKU that already holds stock cannot become a bundle.
	DefineBundle(ctx context.Context, sku, name string, components []BundleComponent) error
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) ReceiveStock(ctx context.Context, sku, name string, qty, unitCost decimal.Decimal,
	receivedAt time.Time, ref LayerReference) (*ReceiptLayer, error) {

	if sku == "" {
		return nil, errors.New("sku must not be empty")
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("receive quantity must be positive, got %s", qty)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("unit cost cannot be negative, got %s", unitCost)
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Create the item on first reference; name updates are harmless.
	var isBundle bool
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_items (sku, name, is_bundle)
		VALUES ($1, $2, false)
		ON CONFLICT (sku) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), inventory_items.name)
		RETURNING is_bundle
	`, sku, name).Scan(&isBundle)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert item %s: %w", sku, err)
	}
	if isBundle {
		return nil, &ConfigurationError{SKU: sku, Reason: "bundle items cannot be stocked directly"}
	}

	layer := &ReceiptLayer{
		SKU:          sku,
		ReceivedAt:   receivedAt,
		QtyReceived:  qty,
		QtyRemaining: qty,
		UnitCost:     unitCost,
		Reference:    ref,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO receipt_layers (sku, received_at, qty_received, qty_remaining, unit_cost, reference_type)
		VALUES ($1, $2, $3, $3, $4, $5)
		RETURNING id, created_at
	`, sku, receivedAt, qty, unitCost, string(ref)).Scan(&layer.ID, &layer.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert receipt layer for %s: %w", sku, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock receipt: %w", err)
	}
	return layer, nil
}

func (s *stockService) VoidLayer(ctx context.Context, layerID int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE receipt_layers SET voided = true WHERE id = $1", layerID)
	if err != nil {
		return fmt.Errorf("failed to void layer %d: %w", layerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("layer %d not found", layerID)
	}
	return nil
}

func (s *stockService) ListLayers(ctx context.Context, sku string) ([]ReceiptLayer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sku, received_at, qty_received, qty_remaining, unit_cost, reference_type, voided, created_at
		FROM receipt_layers
		WHERE sku = $1
		ORDER BY received_at ASC, id ASC
	`, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to query layers for %s: %w", sku, err)
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
		return nil, fmt.Errorf("error iterating layers for %s: %w", sku, err)
	}
	return layers, nil
}

func (s *stockService) DefineBundle(ctx context.Context, sku, name string, components []BundleComponent) error {
	if sku == "" {
		return errors.New("bundle sku must not be empty")
	}
	if len(components) == 0 {
		return &ConfigurationError{SKU: sku, Reason: "bundle must have at least one component"}
	}
	for _, c := range components {
		if c.ComponentSKU == "" || c.ComponentSKU == sku {
			return &ConfigurationError{SKU: sku, Reason: fmt.Sprintf("invalid component sku %q", c.ComponentSKU)}
		}
		if !c.QtyPerUnit.IsPositive() {
			return &ConfigurationError{SKU: sku, Reason: fmt.Sprintf("component %s qty must be positive", c.ComponentSKU)}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// A SKU with receipt layers is a physical item; flipping it to a bundle
	// would orphan its stock.
	var layerCount int
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM receipt_layers WHERE sku = $1 AND NOT voided", sku).Scan(&layerCount)
	if err != nil {
		return fmt.Errorf("failed to check layers for %s: %w", sku, err)
	}
	if layerCount > 0 {
		return &ConfigurationError{SKU: sku, Reason: "sku holds stock and cannot become a bundle"}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_items (sku, name, is_bundle)
		VALUES ($1, $2, true)
		ON CONFLICT (sku) DO UPDATE
		SET is_bundle = true,
		    name = COALESCE(NULLIF(EXCLUDED.name, ''), inventory_items.name)
	`, sku, name)
	if err != nil {
		return fmt.Errorf("failed to upsert bundle %s: %w", sku, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM bundle_components WHERE bundle_sku = $1", sku); err != nil {
		return fmt.Errorf("failed to clear components for %s: %w", sku, err)
	}
	for _, c := range components {
		_, err := tx.Exec(ctx, `
			INSERT INTO bundle_components (bundle_sku, component_sku, qty_per_unit)
			VALUES ($1, $2, $3)
		`, sku, c.ComponentSKU, c.QtyPerUnit)
		if err != nil {
			return fmt.Errorf("failed to insert component %s of %s: %w", c.ComponentSKU, sku, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bundle definition for %s: %w", sku, err)
	}
	return nil
}

func (s *stockService) ListItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT sku, name, is_bundle, created_at FROM inventory_items ORDER BY sku")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.SKU, &it.Name, &it.IsBundle, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
