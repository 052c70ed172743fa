package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Item quality statuses.
const (
	QualityStatusPending = "PENDING"
	QualityStatusPassed  = "PASSED"
	QualityStatusFailed  = "FAILED"
	QualityStatusRework  = "REWORK"
)

// Item lifecycle statuses.
const (
	ItemStatusManufactured = "MANUFACTURED"
	ItemStatusInTransit    = "IN_TRANSIT"
	ItemStatusDelivered    = "DELIVERED"
	ItemStatusReturned     = "RETURNED"
	ItemStatusScrapped     = "SCRAPPED"
)

// Item represents one physical manufactured unit within a batch.
type Item struct {
	ID                    int64
	SerialNumber          string
	BatchID               int64
	ManufacturingDate     time.Time
	ManufacturingOperator string
	QualityStatus         string
	QualityInspector      *string
	QualityInspectionDate *time.Time
	QualityNotes          *string
	NFTMintAddress        *string
	NFTExplorerLink       *string
	NFTMetadataURI        *string
	CurrentOwner          *string
	Status                string
	AdditionalAttributes  []byte
	Metadata              []byte
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CreateItemParams contains the parameters for creating an item.
type CreateItemParams struct {
	SerialNumber          string
	BatchID               int64
	ManufacturingDate     time.Time
	ManufacturingOperator string
	QualityStatus         string
	QualityInspector      *string
	QualityInspectionDate *time.Time
	QualityNotes          *string
	NFTMintAddress        *string
	NFTExplorerLink       *string
	NFTMetadataURI        *string
	CurrentOwner          *string
	AdditionalAttributes  []byte
	Metadata              []byte
}

// UpdateItemParams contains the mutable fields of an item.
type UpdateItemParams struct {
	ManufacturingOperator string
	NFTMintAddress        *string
	NFTExplorerLink       *string
	NFTMetadataURI        *string
	CurrentOwner          *string
	Status                string
	AdditionalAttributes  []byte
	Metadata              []byte
}

// QualityInspectionParams records the result of a quality inspection.
type QualityInspectionParams struct {
	QualityStatus    string
	QualityInspector string
	QualityNotes     *string
	InspectedAt      time.Time
}

// ListItemsParams contains optional filters and pagination.
type ListItemsParams struct {
	BatchID       int64
	QualityStatus string
	Status        string
	Limit         int32
	Offset        int32
}

const itemColumns = `id, serial_number, batch_id, manufacturing_date, manufacturing_operator,
	quality_status, quality_inspector, quality_inspection_date, quality_notes,
	nft_mint_address, nft_explorer_link, nft_metadata_uri, current_owner, status,
	additional_attributes, metadata, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.SerialNumber, &i.BatchID, &i.ManufacturingDate,
		&i.ManufacturingOperator, &i.QualityStatus, &i.QualityInspector,
		&i.QualityInspectionDate, &i.QualityNotes, &i.NFTMintAddress,
		&i.NFTExplorerLink, &i.NFTMetadataURI, &i.CurrentOwner, &i.Status,
		&i.AdditionalAttributes, &i.Metadata, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &i, nil
}

// CreateItem inserts a new item. The serial number is globally unique.
func (s *Store) CreateItem(ctx context.Context, params CreateItemParams) (*Item, error) {
	quality := params.QualityStatus
	if quality == "" {
		quality = QualityStatusPending
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO items (serial_number, batch_id, manufacturing_date, manufacturing_operator,
			quality_status, quality_inspector, quality_inspection_date, quality_notes,
			nft_mint_address, nft_explorer_link, nft_metadata_uri, current_owner,
			additional_attributes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+itemColumns,
		params.SerialNumber, params.BatchID, params.ManufacturingDate,
		params.ManufacturingOperator, quality, params.QualityInspector,
		params.QualityInspectionDate, params.QualityNotes, params.NFTMintAddress,
		params.NFTExplorerLink, params.NFTMetadataURI, params.CurrentOwner,
		params.AdditionalAttributes, params.Metadata)
	return scanItem(row)
}

// GetItemBySerial retrieves an item by its serial number.
func (s *Store) GetItemBySerial(ctx context.Context, serialNumber string) (*Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE serial_number = $1`, serialNumber)
	return scanItem(row)
}

// ListItems retrieves items matching the given filters.
func (s *Store) ListItems(ctx context.Context, params ListItemsParams) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := []any{}
	if params.BatchID != 0 {
		args = append(args, params.BatchID)
		query += fmt.Sprintf(" AND batch_id = $%d", len(args))
	}
	if params.QualityStatus != "" {
		args = append(args, params.QualityStatus)
		query += fmt.Sprintf(" AND quality_status = $%d", len(args))
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

	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// UpdateItem updates the mutable fields of an item.
func (s *Store) UpdateItem(ctx context.Context, serialNumber string, params UpdateItemParams) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE items
		SET manufacturing_operator = $2, nft_mint_address = $3, nft_explorer_link = $4,
			nft_metadata_uri = $5, current_owner = $6, status = $7,
			additional_attributes = $8, metadata = $9, updated_at = now()
		WHERE serial_number = $1
		RETURNING `+itemColumns,
		serialNumber, params.ManufacturingOperator, params.NFTMintAddress,
		params.NFTExplorerLink, params.NFTMetadataURI, params.CurrentOwner,
		params.Status, params.AdditionalAttributes, params.Metadata)
	return scanItem(row)
}

// RecordQualityInspection stores the outcome of a quality inspection.
func (s *Store) RecordQualityInspection(ctx context.Context, serialNumber string, params QualityInspectionParams) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE items
		SET quality_status = $2, quality_inspector = $3, quality_notes = $4,
			quality_inspection_date = $5, updated_at = now()
		WHERE serial_number = $1
		RETURNING `+itemColumns,
		serialNumber, params.QualityStatus, params.QualityInspector,
		params.QualityNotes, params.InspectedAt)
	return scanItem(row)
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, serialNumber string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE serial_number = $1`, serialNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
