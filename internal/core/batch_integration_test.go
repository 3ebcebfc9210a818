package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"seller-ops/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

func setupBatchTest(t *testing.T) (*pgxpool.Pool, core.ImportBatchService, context.Context) {
	t.Helper()
	pool := setupTestDB(t)
	return pool, core.NewImportBatchService(pool, nil), context.Background()
}

func seedAdSpendRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, batchID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO ad_spend_entries (batch_id, spend_date, campaign, amount)
			VALUES ($1, $2, 'campaign-x', 12.50)
		`, batchID, day(i+1))
		if err != nil {
			t.Fatalf("Failed to seed ad spend row: %v", err)
		}
	}
}

func TestImportBatch_Lifecycle(t *testing.T) {
	_, svc, ctx := setupBatchTest(t)

	batch, err := svc.CreateBatch(ctx, core.BatchAdSpend, "hash-1", "august spend")
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if batch.Status != core.BatchProcessing {
		t.Errorf("Expected processing, got %s", batch.Status)
	}

	if err := svc.MarkSuccess(ctx, batch.ID, 42); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}
	loaded, err := svc.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if loaded.Status != core.BatchSuccess || loaded.RowCount != 42 {
		t.Errorf("Expected success/42, got %s/%d", loaded.Status, loaded.RowCount)
	}
	if !strings.Contains(loaded.Notes, "42 rows") {
		t.Errorf("Expected audit note in %q", loaded.Notes)
	}

	// Terminal batches cannot transition again.
	if err := svc.MarkFailed(ctx, batch.ID, "late failure"); err == nil {
		t.Error("Expected error marking a success batch failed")
	}
}

func TestImportBatch_DuplicateHash(t *testing.T) {
	_, svc, ctx := setupBatchTest(t)

	first, err := svc.CreateBatch(ctx, core.BatchWallet, "hash-dup", "")
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	_, err = svc.CreateBatch(ctx, core.BatchWallet, "hash-dup", "")
	if !errors.Is(err, core.ErrDuplicateImport) {
		t.Fatalf("Expected ErrDuplicateImport, got %v", err)
	}

	// Same hash under a different kind is a different file.
	if _, err := svc.CreateBatch(ctx, core.BatchAdSpend, "hash-dup", ""); err != nil {
		t.Errorf("Cross-kind duplicate should be allowed: %v", err)
	}

	// After rollback the hash is free again.
	if err := svc.MarkSuccess(ctx, first.ID, 1); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}
	if err := svc.Rollback(ctx, first.ID); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if _, err := svc.CreateBatch(ctx, core.BatchWallet, "hash-dup", ""); err != nil {
		t.Errorf("Re-import after rollback should be allowed: %v", err)
	}
}

func TestImportBatch_RollbackSoftDeletes(t *testing.T) {
	pool, svc, ctx := setupBatchTest(t)

	batch, err := svc.CreateBatch(ctx, core.BatchAdSpend, "hash-rb", "")
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	seedAdSpendRows(t, ctx, pool, batch.ID, 3)
	if err := svc.MarkSuccess(ctx, batch.ID, 3); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}

	// Rollback is only legal from a terminal import state, not mid-flight.
	mid, _ := svc.CreateBatch(ctx, core.BatchAdSpend, "hash-mid", "")
	if err := svc.Rollback(ctx, mid.ID); err == nil {
		t.Error("Expected error rolling back a processing batch")
	}

	if err := svc.Rollback(ctx, batch.ID); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	var live, total int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FILTER (WHERE deleted_at IS NULL), COUNT(*) FROM ad_spend_entries WHERE batch_id = $1",
		batch.ID).Scan(&live, &total); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if live != 0 {
		t.Errorf("Expected all rows soft-deleted, %d still live", live)
	}
	if total != 3 {
		t.Errorf("Rollback must keep rows for audit, got %d", total)
	}

	loaded, err := svc.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if loaded.Status != core.BatchRolledBack {
		t.Errorf("Expected rolled_back, got %s", loaded.Status)
	}
}

func TestImportBatch_PurgeHardDeletes(t *testing.T) {
	pool, svc, ctx := setupBatchTest(t)

	batch, err := svc.CreateBatch(ctx, core.BatchAdSpend, "hash-purge", "")
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	seedAdSpendRows(t, ctx, pool, batch.ID, 2)
	if err := svc.MarkSuccess(ctx, batch.ID, 2); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}

	if err := svc.Purge(ctx, batch.ID); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	var total int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ad_spend_entries WHERE batch_id = $1", batch.ID).Scan(&total); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected all derived rows deleted, got %d", total)
	}
	if _, err := svc.GetBatch(ctx, batch.ID); err == nil {
		t.Error("Expected batch record gone after purge")
	}
}

func TestImportBatch_SalesRollbackHidesOrders(t *testing.T) {
	pool, svc, ctx := setupBatchTest(t)

	_, err := pool.Exec(ctx, `
		INSERT INTO inventory_items (sku, name, is_bundle) VALUES ('A', 'Widget A', false)
	`)
	if err != nil {
		t.Fatalf("Failed to seed item: %v", err)
	}

	batch, err := svc.CreateBatch(ctx, core.BatchSales, "hash-sales", "")
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO sales_orders (order_id, sku, quantity, created_at, batch_id, cancelled)
		VALUES ('SO-1', 'A', 5, $1, $2, false)
	`, day(1), batch.ID)
	if err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	if err := svc.MarkSuccess(ctx, batch.ID, 1); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}
	if err := svc.Rollback(ctx, batch.ID); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// Soft-deleted orders vanish from the reservation picture.
	availSvc := core.NewAvailabilityService(pool, core.NewBundleResolver(pool))
	avail, err := availSvc.ComputeAvailability(ctx)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}
	if _, ok := avail.Reserved["A"]; ok {
		t.Error("Rolled-back sales rows must not reserve stock")
	}
}
