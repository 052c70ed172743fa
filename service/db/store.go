package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides database operations for the service.
// All methods use hand-written SQL against a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. All statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (duplicate gtin, serial number, batch name, signature, ...).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key
// violation, e.g. deleting a product that still has batches.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Product is the master product definition, keyed by GTIN.
type Product struct {
	ID             int64
	GTIN           string
	ProductName    string
	Company        string
	Category       string
	Description    *string
	Model          *string
	Specifications []byte // JSON document
	WarrantyMonths *int32
	ImageURL       *string
	NFTMintAddress *string
	Metadata       []byte // JSON document
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateProductParams contains the parameters for creating a product.
type CreateProductParams struct {
	GTIN           string
	ProductName    string
	Company        string
	Category       string
	Description    *string
	Model          *string
	Specifications []byte
	WarrantyMonths *int32
	ImageURL       *string
	NFTMintAddress *string
	Metadata       []byte
}

// UpdateProductParams contains the mutable fields of a product. Callers are
// expected to read the current record and carry over fields they do not
// intend to change.
type UpdateProductParams struct {
	ProductName    string
	Company        string
	Category       string
	Description    *string
	Model          *string
	Specifications []byte
	WarrantyMonths *int32
	ImageURL       *string
	NFTMintAddress *string
	Metadata       []byte
}

// ListProductsParams contains optional filters and pagination.
type ListProductsParams struct {
	Company  string
	Category string
	IsActive *bool
	Limit    int32
	Offset   int32
}

const productColumns = `id, gtin, product_name, company, category, description, model,
	specifications, warranty_months, image_url, nft_mint_address, metadata,
	is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.GTIN, &p.ProductName, &p.Company, &p.Category,
		&p.Description, &p.Model, &p.Specifications, &p.WarrantyMonths,
		&p.ImageURL, &p.NFTMintAddress, &p.Metadata, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &p, nil
}

// CreateProduct inserts a new product.
func (s *Store) CreateProduct(ctx context.Context, params CreateProductParams) (*Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (gtin, product_name, company, category, description, model,
			specifications, warranty_months, image_url, nft_mint_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+productColumns,
		params.GTIN, params.ProductName, params.Company, params.Category,
		params.Description, params.Model, params.Specifications,
		params.WarrantyMonths, params.ImageURL, params.NFTMintAddress, params.Metadata)
	return scanProduct(row)
}

// GetProductByGTIN retrieves a product by its GTIN.
func (s *Store) GetProductByGTIN(ctx context.Context, gtin string) (*Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE gtin = $1`, gtin)
	return scanProduct(row)
}

// GetProductByID retrieves a product by its numeric id.
func (s *Store) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProducts retrieves products matching the given filters.
func (s *Store) ListProducts(ctx context.Context, params ListProductsParams) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if params.Company != "" {
		args = append(args, params.Company)
		query += fmt.Sprintf(" AND company = $%d", len(args))
	}
	if params.Category != "" {
		args = append(args, params.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
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

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct updates the mutable fields of a product identified by GTIN.
func (s *Store) UpdateProduct(ctx context.Context, gtin string, params UpdateProductParams) (*Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET product_name = $2, company = $3, category = $4, description = $5,
			model = $6, specifications = $7, warranty_months = $8, image_url = $9,
			nft_mint_address = $10, metadata = $11, updated_at = now()
		WHERE gtin = $1
		RETURNING `+productColumns,
		gtin, params.ProductName, params.Company, params.Category,
		params.Description, params.Model, params.Specifications,
		params.WarrantyMonths, params.ImageURL, params.NFTMintAddress, params.Metadata)
	return scanProduct(row)
}

// SetProductActive toggles the is_active flag of a product.
func (s *Store) SetProductActive(ctx context.Context, gtin string, active bool) (*Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products SET is_active = $2, updated_at = now()
		WHERE gtin = $1
		RETURNING `+productColumns, gtin, active)
	return scanProduct(row)
}

// DeleteProduct removes a product. Fails if batches still reference it.
func (s *Store) DeleteProduct(ctx context.Context, gtin string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE gtin = $1`, gtin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProductStats summarizes manufacturing activity for one product.
type ProductStats struct {
	BatchCount     int64
	ItemCount      int64
	PlannedTotal   int64
	ProducedTotal  int64
	ItemsByQuality map[string]int64
}

// GetProductStats aggregates batch and item counters for a product.
func (s *Store) GetProductStats(ctx context.Context, productID int64) (*ProductStats, error) {
	stats := &ProductStats{ItemsByQuality: make(map[string]int64)}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(planned_quantity), 0), COALESCE(SUM(produced_quantity), 0)
		FROM batches WHERE product_id = $1`, productID).
		Scan(&stats.BatchCount, &stats.PlannedTotal, &stats.ProducedTotal)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT i.quality_status, COUNT(*)
		FROM items i
		JOIN batches b ON b.id = i.batch_id
		WHERE b.product_id = $1
		GROUP BY i.quality_status`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ItemsByQuality[status] = count
		stats.ItemCount += count
	}
	return stats, rows.Err()
}
