package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// BatchKind identifies which import path produced a batch.
type BatchKind string

const (
	BatchAdSpend BatchKind = "ad_spend"
	BatchWallet  BatchKind = "wallet"
	BatchSales   BatchKind = "sales"
)

// BatchStatus follows processing → success | failed, then rolled_back or
// deleted as terminal compensation states.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchSuccess    BatchStatus = "success"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolled_back"
	BatchDeleted    BatchStatus = "deleted"
)

// ErrDuplicateImport is returned when a batch with the same content hash has
// already been loaded for the same kind.
var ErrDuplicateImport = errors.New("duplicate import: identical file already loaded")

// ImportBatch is the provenance record for one bulk load. Every derived row
// carries its batch id, which is what makes batch-scoped rollback possible.
type ImportBatch struct {
	ID          string      `json:"id"`
	Kind        BatchKind   `json:"kind"`
	ContentHash string      `json:"content_hash"`
	Status      BatchStatus `json:"status"`
	RowCount    int         `json:"row_count"`
	Notes       string      `json:"notes"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// derivedTables maps a batch kind to the table holding its imported rows.
// Sales rows are owned by the sales-import subsystem and referenced only.
var derivedTables = map[BatchKind]string{
	BatchAdSpend: "ad_spend_entries",
	BatchWallet:  "wallet_entries",
	BatchSales:   "sales_orders",
}

// ImportBatchService tracks bulk-load provenance and exposes the two
// compensating transactions: rollback (soft-delete derived rows) and purge
// (hard-delete everything including the batch record).
type ImportBatchService interface {
	CreateBatch(ctx context.Context, kind BatchKind, contentHash, notes string) (*ImportBatch, error)
	MarkSuccess(ctx context.Context, batchID string, rowCount int) error
	MarkFailed(ctx context.Context, batchID, reason string) error
	Rollback(ctx context.Context, batchID string) error
	Purge(ctx context.Context, batchID string) error
	GetBatch(ctx context.Context, batchID string) (*ImportBatch, error)
	ListBatches(ctx context.Context, kind BatchKind) ([]ImportBatch, error)
}

type importBatchService struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

func NewImportBatchService(pool *pgxpool.Pool, log *logrus.Logger) ImportBatchService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &importBatchService{pool: pool, log: log}
}

func (s *importBatchService) CreateBatch(ctx context.Context, kind BatchKind, contentHash, notes string) (*ImportBatch, error) {
	if _, ok := derivedTables[kind]; !ok {
		return nil, fmt.Errorf("unknown batch kind %q", kind)
	}

	// Duplicate detection: an identical file may be re-imported only after
	// its earlier batch was rolled back or purged.
	var existingID string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM import_batches
		WHERE kind = $1 AND content_hash = $2 AND status IN ('processing', 'success')
	`, string(kind), contentHash).Scan(&existingID)
	if err == nil {
		return nil, fmt.Errorf("%w (batch %s)", ErrDuplicateImport, existingID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check for duplicate import: %w", err)
	}

	batch := &ImportBatch{
		ID:          uuid.NewString(),
		Kind:        kind,
		ContentHash: contentHash,
		Status:      BatchProcessing,
		Notes:       notes,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO import_batches (id, kind, content_hash, status, row_count, notes)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING created_at, updated_at
	`, batch.ID, string(kind), contentHash, string(BatchProcessing), notes).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create import batch: %w", err)
	}
	return batch, nil
}

func (s *importBatchService) MarkSuccess(ctx context.Context, batchID string, rowCount int) error {
	return s.transition(ctx, batchID, BatchSuccess, rowCount,
		fmt.Sprintf("import completed with %d rows", rowCount))
}

func (s *importBatchService) MarkFailed(ctx context.Context, batchID, reason string) error {
	return s.transition(ctx, batchID, BatchFailed, 0, "import failed: "+reason)
}

func (s *importBatchService) transition(ctx context.Context, batchID string, status BatchStatus, rowCount int, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_batches
		SET status = $1,
		    row_count = GREATEST(row_count, $2),
		    notes = notes || $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'processing'
	`, string(status), rowCount, auditNote(note), batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s not found or not in processing state", batchID)
	}
	return nil
}

// Rollback soft-deletes every derived row of the batch and marks the batch
// rolled back, appending an audit note. The rows stay queryable for audit.
func (s *importBatchService) Rollback(ctx context.Context, batchID string) error {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != BatchSuccess && batch.Status != BatchFailed {
		return fmt.Errorf("batch %s is %s and cannot be rolled back", batchID, batch.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	table := derivedTables[batch.Kind]
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW()
		WHERE batch_id = $1 AND deleted_at IS NULL
	`, table), batchID)
	if err != nil {
		return fmt.Errorf("failed to soft-delete %s rows for batch %s: %w", table, batchID, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE import_batches
		SET status = $1, notes = notes || $2, updated_at = NOW()
		WHERE id = $3
	`, string(BatchRolledBack), auditNote(fmt.Sprintf("rolled back, %d rows soft-deleted", tag.RowsAffected())), batchID)
	if err != nil {
		return fmt.Errorf("failed to mark batch %s rolled back: %w", batchID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollback of batch %s: %w", batchID, err)
	}

	s.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"kind":     batch.Kind,
		"rows":     tag.RowsAffected(),
	}).Info("import batch rolled back")
	return nil
}

// Purge hard-deletes the batch's derived rows and the batch record itself.
func (s *importBatchService) Purge(ctx context.Context, batchID string) error {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	table := derivedTables[batch.Kind]
	tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE batch_id = $1", table), batchID)
	if err != nil {
		return fmt.Errorf("failed to delete %s rows for batch %s: %w", table, batchID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM import_batches WHERE id = $1", batchID); err != nil {
		return fmt.Errorf("failed to delete batch %s: %w", batchID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit purge of batch %s: %w", batchID, err)
	}

	s.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"kind":     batch.Kind,
		"rows":     tag.RowsAffected(),
	}).Warn("import batch purged")
	return nil
}

func (s *importBatchService) GetBatch(ctx context.Context, batchID string) (*ImportBatch, error) {
	var b ImportBatch
	var kind, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, content_hash, status, row_count, notes, created_at, updated_at
		FROM import_batches WHERE id = $1
	`, batchID).Scan(&b.ID, &kind, &b.ContentHash, &status, &b.RowCount, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	b.Kind, b.Status = BatchKind(kind), BatchStatus(status)
	return &b, nil
}

func (s *importBatchService) ListBatches(ctx context.Context, kind BatchKind) ([]ImportBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, content_hash, status, row_count, notes, created_at, updated_at
		FROM import_batches
		WHERE $1 = '' OR kind = $1
		ORDER BY created_at DESC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		var k, st string
		if err := rows.Scan(&b.ID, &k, &b.ContentHash, &st, &b.RowCount, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.Kind, b.Status = BatchKind(k), BatchStatus(st)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

func auditNote(note string) string {
	return fmt.Sprintf("\n[%s] %s", time.Now().Format(time.RFC3339), note)
}
