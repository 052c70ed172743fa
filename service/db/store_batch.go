package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Batch statuses.
const (
	BatchStatusPlanned    = "PLANNED"
	BatchStatusInProgress = "IN_PROGRESS"
	BatchStatusCompleted  = "COMPLETED"
	BatchStatusCancelled  = "CANCELLED"
)

// Batch represents one manufacturing run of a product.
type Batch struct {
	ID                        int64
	BatchName                 string
	ProductID                 int64
	ManufacturingFacility     string
	ProductionLine            string
	StartDate                 time.Time
	EndDate                   *time.Time
	PlannedQuantity           int32
	ProducedQuantity          int32
	Status                    string
	NFTCollectionAddress      *string
	NFTCollectionExplorerLink *string
	Metadata                  []byte
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// CreateBatchParams contains the parameters for creating a batch.
type CreateBatchParams struct {
	BatchName                 string
	ProductID                 int64
	ManufacturingFacility     string
	ProductionLine            string
	StartDate                 time.Time
	PlannedQuantity           int32
	Status                    string
	NFTCollectionAddress      *string
	NFTCollectionExplorerLink *string
	Metadata                  []byte
}

// UpdateBatchParams contains the mutable fields of a batch.
type UpdateBatchParams struct {
	ManufacturingFacility     string
	ProductionLine            string
	EndDate                   *time.Time
	PlannedQuantity           int32
	ProducedQuantity          int32
	Status                    string
	NFTCollectionAddress      *string
	NFTCollectionExplorerLink *string
	Metadata                  []byte
}

// ListBatchesParams contains optional filters and pagination.
type ListBatchesParams struct {
	ProductID int64
	Status    string
	Limit     int32
	Offset    int32
}

const batchColumns = `id, batch_name, product_id, manufacturing_facility, production_line,
	start_date, end_date, planned_quantity, produced_quantity, status,
	nft_collection_address, nft_collection_explorer_link, metadata, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.BatchName, &b.ProductID, &b.ManufacturingFacility,
		&b.ProductionLine, &b.StartDate, &b.EndDate, &b.PlannedQuantity,
		&b.ProducedQuantity, &b.Status, &b.NFTCollectionAddress,
		&b.NFTCollectionExplorerLink, &b.Metadata, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &b, nil
}

// CreateBatch inserts a new batch. The (product_id, batch_name) pair is unique.
func (s *Store) CreateBatch(ctx context.Context, params CreateBatchParams) (*Batch, error) {
	status := params.Status
	if status == "" {
		status = BatchStatusPlanned
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO batches (batch_name, product_id, manufacturing_facility, production_line,
			start_date, planned_quantity, status, nft_collection_address,
			nft_collection_explorer_link, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+batchColumns,
		params.BatchName, params.ProductID, params.ManufacturingFacility,
		params.ProductionLine, params.StartDate, params.PlannedQuantity,
		status, params.NFTCollectionAddress, params.NFTCollectionExplorerLink,
		params.Metadata)
	return scanBatch(row)
}

// GetBatch retrieves a batch by id.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	return scanBatch(row)
}

// ListBatches retrieves batches matching the given filters.
func (s *Store) ListBatches(ctx context.Context, params ListBatchesParams) ([]*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE 1=1`
	args := []any{}
	if params.ProductID != 0 {
		args = append(args, params.ProductID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpdateBatch updates the mutable fields of a batch.
func (s *Store) UpdateBatch(ctx context.Context, id int64, params UpdateBatchParams) (*Batch, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE batches
		SET manufacturing_facility = $2, production_line = $3, end_date = $4,
			planned_quantity = $5, produced_quantity = $6, status = $7,
			nft_collection_address = $8, nft_collection_explorer_link = $9,
			metadata = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+batchColumns,
		id, params.ManufacturingFacility, params.ProductionLine, params.EndDate,
		params.PlannedQuantity, params.ProducedQuantity, params.Status,
		params.NFTCollectionAddress, params.NFTCollectionExplorerLink, params.Metadata)
	return scanBatch(row)
}

// AdjustBatchProducedQuantity increments (or decrements) the produced counter.
func (s *Store) AdjustBatchProducedQuantity(ctx context.Context, id int64, delta int32) (*Batch, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE batches
		SET produced_quantity = produced_quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+batchColumns, id, delta)
	return scanBatch(row)
}

// DeleteBatch removes a batch. Fails if items still reference it.
func (s *Store) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BatchStats summarizes item progress within one batch.
type BatchStats struct {
	PlannedQuantity  int32
	ProducedQuantity int32
	ItemCount        int64
	ItemsByStatus    map[string]int64
	ItemsByQuality   map[string]int64
}

// GetBatchStats aggregates item counters for a batch.
func (s *Store) GetBatchStats(ctx context.Context, id int64) (*BatchStats, error) {
	stats := &BatchStats{
		ItemsByStatus:  make(map[string]int64),
		ItemsByQuality: make(map[string]int64),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT planned_quantity, produced_quantity FROM batches WHERE id = $1`, id).
		Scan(&stats.PlannedQuantity, &stats.ProducedQuantity)
	if err != nil {
		return nil, notFoundOr(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, quality_status, COUNT(*)
		FROM items WHERE batch_id = $1
		GROUP BY status, quality_status`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, quality string
		var count int64
		if err := rows.Scan(&status, &quality, &count); err != nil {
			return nil, err
		}
		stats.ItemsByStatus[status] += count
		stats.ItemsByQuality[quality] += count
		stats.ItemCount += count
	}
	return stats, rows.Err()
}
