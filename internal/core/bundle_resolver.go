package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BundleResolver maps SKUs to their costing components. A regular SKU
// resolves to itself with quantity 1, so callers treat bundle and non-bundle
// SKUs uniformly. The component table is owned by catalog management and is
// strictly read-only here.
type BundleResolver interface {
	// ResolveComponents returns the weighted component list for one SKU.
	// A bundle with zero component rows is a ConfigurationError.
	ResolveComponents(ctx context.Context, sku string) ([]BundleComponent, error)

	// ResolveAll resolves a set of SKUs in bounded batches. The returned map
	// has one entry per distinct input SKU.
	ResolveAll(ctx context.Context, skus []string) (map[string][]BundleComponent, error)
}

type bundleResolver struct {
	pool *pgxpool.Pool
}

func NewBundleResolver(pool *pgxpool.Pool) BundleResolver {
	return &bundleResolver{pool: pool}
}

func (r *bundleResolver) ResolveComponents(ctx context.Context, sku string) ([]BundleComponent, error) {
	var isBundle bool
	err := r.pool.QueryRow(ctx, "SELECT is_bundle FROM inventory_items WHERE sku = $1", sku).Scan(&isBundle)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unreferenced SKUs are regular items by definition.
		isBundle = false
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up item %s: %w", sku, err)
	}

	if !isBundle {
		return []BundleComponent{{ComponentSKU: sku, QtyPerUnit: decimal.NewFromInt(1)}}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT component_sku, qty_per_unit
		FROM bundle_components
		WHERE bundle_sku = $1
		ORDER BY component_sku
	`, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to query components of %s: %w", sku, err)
	}
	defer rows.Close()

	var components []BundleComponent
	for rows.Next() {
		var c BundleComponent
		if err := rows.Scan(&c.ComponentSKU, &c.QtyPerUnit); err != nil {
			return nil, fmt.Errorf("failed to scan bundle component: %w", err)
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components of %s: %w", sku, err)
	}

	if len(components) == 0 {
		return nil, &ConfigurationError{SKU: sku, Reason: "bundle has no components"}
	}
	return components, nil
}

func (r *bundleResolver) ResolveAll(ctx context.Context, skus []string) (map[string][]BundleComponent, error) {
	distinct := make([]string, 0, len(skus))
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		distinct = append(distinct, sku)
	}

	// Which of the inputs are bundles, fetched in bounded batches.
	bundles := make(map[string]bool, len(distinct))
	for _, chunk := range chunkSlice(distinct, lookupChunkSize) {
		rows, err := r.pool.Query(ctx,
			"SELECT sku FROM inventory_items WHERE sku = ANY($1) AND is_bundle", chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query bundle flags: %w", err)
		}
		for rows.Next() {
			var sku string
			if err := rows.Scan(&sku); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan bundle flag: %w", err)
			}
			bundles[sku] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating bundle flags: %w", err)
		}
	}

	resolved := make(map[string][]BundleComponent, len(distinct))
	var bundleSKUs []string
	for _, sku := range distinct {
		if bundles[sku] {
			bundleSKUs = append(bundleSKUs, sku)
			continue
		}
		resolved[sku] = []BundleComponent{{ComponentSKU: sku, QtyPerUnit: decimal.NewFromInt(1)}}
	}

	for _, chunk := range chunkSlice(bundleSKUs, lookupChunkSize) {
		rows, err := r.pool.Query(ctx, `
			SELECT bundle_sku, component_sku, qty_per_unit
			FROM bundle_components
			WHERE bundle_sku = ANY($1)
			ORDER BY bundle_sku, component_sku
		`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query bundle components: %w", err)
		}
		for rows.Next() {
			var bundleSKU string
			var c BundleComponent
			if err := rows.Scan(&bundleSKU, &c.ComponentSKU, &c.QtyPerUnit); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan bundle component: %w", err)
			}
			resolved[bundleSKU] = append(resolved[bundleSKU], c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating bundle components: %w", err)
		}
	}

	for _, sku := range bundleSKUs {
		if len(resolved[sku]) == 0 {
			return nil, &ConfigurationError{SKU: sku, Reason: "bundle has no components"}
		}
	}
	return resolved, nil
}
