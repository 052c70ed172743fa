package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FractionalToken records a fungible share token minted against an NFT.
type FractionalToken struct {
	ID             int64
	NFTMintAddress string
	ShareTokenMint string
	TokenName      string
	TokenSymbol    string
	TotalShares    int64
	Decimals       int32
	Description    *string
	ImageURL       *string
	MetadataURI    *string
	CreatorAddress string
	CreatorName    string
	CreatorID      *string
	ExplorerLink   string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateFractionalTokenParams contains the parameters for recording a
// freshly minted share token.
type CreateFractionalTokenParams struct {
	NFTMintAddress string
	ShareTokenMint string
	TokenName      string
	TokenSymbol    string
	TotalShares    int64
	Decimals       int32
	Description    *string
	ImageURL       *string
	MetadataURI    *string
	CreatorAddress string
	CreatorName    string
	CreatorID      *string
	ExplorerLink   string
}

// ListFractionalTokensParams contains optional filters and pagination.
type ListFractionalTokensParams struct {
	CreatorAddress string
	IsActive       *bool
	Limit          int32
	Offset         int32
}

const fractionalTokenColumns = `id, nft_mint_address, share_token_mint, token_name, token_symbol,
	total_shares, decimals, description, image_url, metadata_uri,
	creator_address, creator_name, creator_id, explorer_link, is_active,
	created_at, updated_at`

func scanFractionalToken(row pgx.Row) (*FractionalToken, error) {
	var ft FractionalToken
	err := row.Scan(&ft.ID, &ft.NFTMintAddress, &ft.ShareTokenMint, &ft.TokenName,
		&ft.TokenSymbol, &ft.TotalShares, &ft.Decimals, &ft.Description,
		&ft.ImageURL, &ft.MetadataURI, &ft.CreatorAddress, &ft.CreatorName,
		&ft.CreatorID, &ft.ExplorerLink, &ft.IsActive, &ft.CreatedAt, &ft.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &ft, nil
}

// CreateFractionalToken inserts a new share token record. Both the NFT mint
// and the share token mint are unique, so fractionalizing the same NFT twice
// surfaces as a unique violation.
func (s *Store) CreateFractionalToken(ctx context.Context, params CreateFractionalTokenParams) (*FractionalToken, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO fractional_tokens (nft_mint_address, share_token_mint, token_name,
			token_symbol, total_shares, decimals, description, image_url, metadata_uri,
			creator_address, creator_name, creator_id, explorer_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+fractionalTokenColumns,
		params.NFTMintAddress, params.ShareTokenMint, params.TokenName,
		params.TokenSymbol, params.TotalShares, params.Decimals, params.Description,
		params.ImageURL, params.MetadataURI, params.CreatorAddress,
		params.CreatorName, params.CreatorID, params.ExplorerLink)
	return scanFractionalToken(row)
}

// GetFractionalTokenByMint retrieves a share token by its mint address.
func (s *Store) GetFractionalTokenByMint(ctx context.Context, shareTokenMint string) (*FractionalToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fractionalTokenColumns+` FROM fractional_tokens WHERE share_token_mint = $1`,
		shareTokenMint)
	return scanFractionalToken(row)
}

// GetFractionalTokenByNFT retrieves the share token minted against an NFT.
func (s *Store) GetFractionalTokenByNFT(ctx context.Context, nftMintAddress string) (*FractionalToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fractionalTokenColumns+` FROM fractional_tokens WHERE nft_mint_address = $1`,
		nftMintAddress)
	return scanFractionalToken(row)
}

// ListFractionalTokens retrieves share tokens matching the given filters.
func (s *Store) ListFractionalTokens(ctx context.Context, params ListFractionalTokensParams) ([]*FractionalToken, error) {
	query := `SELECT ` + fractionalTokenColumns + ` FROM fractional_tokens WHERE 1=1`
	args := []any{}
	if params.CreatorAddress != "" {
		args = append(args, params.CreatorAddress)
		query += fmt.Sprintf(" AND creator_address = $%d", len(args))
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

	var tokens []*FractionalToken
	for rows.Next() {
		ft, err := scanFractionalToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, ft)
	}
	return tokens, rows.Err()
}

// SetFractionalTokenActive toggles the is_active flag of a share token.
func (s *Store) SetFractionalTokenActive(ctx context.Context, shareTokenMint string, active bool) (*FractionalToken, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE fractional_tokens SET is_active = $2, updated_at = now()
		WHERE share_token_mint = $1
		RETURNING `+fractionalTokenColumns, shareTokenMint, active)
	return scanFractionalToken(row)
}

// ShareTransfer records one confirmed on-chain transfer of share tokens.
// Amount is kept as a decimal string of raw base units so values above
// float precision survive round trips.
type ShareTransfer struct {
	ID             int64
	ShareTokenMint string
	TokenName      string
	TokenSymbol    string
	FromAddress    string
	FromName       *string
	ToAddress      string
	ToName         *string
	ToID           *string
	Amount         string
	Signature      string
	ExplorerLink   string
	Note           *string
	TransferredAt  time.Time
	CreatedAt      time.Time
}

// CreateShareTransferParams contains the parameters for recording a transfer.
type CreateShareTransferParams struct {
	ShareTokenMint string
	TokenName      string
	TokenSymbol    string
	FromAddress    string
	FromName       *string
	ToAddress      string
	ToName         *string
	ToID           *string
	Amount         string
	Signature      string
	ExplorerLink   string
	Note           *string
	TransferredAt  time.Time
}

// ListShareTransfersParams contains optional filters and pagination.
type ListShareTransfersParams struct {
	ShareTokenMint string
	ToAddress      string
	Limit          int32
	Offset         int32
}

const shareTransferColumns = `id, share_token_mint, token_name, token_symbol, from_address,
	from_name, to_address, to_name, to_id, amount, signature, explorer_link,
	note, transferred_at, created_at`

func scanShareTransfer(row pgx.Row) (*ShareTransfer, error) {
	var st ShareTransfer
	err := row.Scan(&st.ID, &st.ShareTokenMint, &st.TokenName, &st.TokenSymbol,
		&st.FromAddress, &st.FromName, &st.ToAddress, &st.ToName, &st.ToID,
		&st.Amount, &st.Signature, &st.ExplorerLink, &st.Note,
		&st.TransferredAt, &st.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &st, nil
}

// CreateShareTransfer records a confirmed transfer. The signature is unique;
// recording the same transaction twice surfaces as a unique violation.
func (s *Store) CreateShareTransfer(ctx context.Context, params CreateShareTransferParams) (*ShareTransfer, error) {
	transferredAt := params.TransferredAt
	if transferredAt.IsZero() {
		transferredAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO share_transfers (share_token_mint, token_name, token_symbol,
			from_address, from_name, to_address, to_name, to_id, amount,
			signature, explorer_link, note, transferred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+shareTransferColumns,
		params.ShareTokenMint, params.TokenName, params.TokenSymbol,
		params.FromAddress, params.FromName, params.ToAddress, params.ToName,
		params.ToID, params.Amount, params.Signature, params.ExplorerLink,
		params.Note, transferredAt)
	return scanShareTransfer(row)
}

// ListShareTransfers retrieves transfers matching the given filters, most
// recent first.
func (s *Store) ListShareTransfers(ctx context.Context, params ListShareTransfersParams) ([]*ShareTransfer, error) {
	query := `SELECT ` + shareTransferColumns + ` FROM share_transfers WHERE 1=1`
	args := []any{}
	if params.ShareTokenMint != "" {
		args = append(args, params.ShareTokenMint)
		query += fmt.Sprintf(" AND share_token_mint = $%d", len(args))
	}
	if params.ToAddress != "" {
		args = append(args, params.ToAddress)
		query += fmt.Sprintf(" AND to_address = $%d", len(args))
	}
	query += " ORDER BY transferred_at DESC"
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

	var transfers []*ShareTransfer
	for rows.Next() {
		st, err := scanShareTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, st)
	}
	return transfers, rows.Err()
}

// ListShareTransfersSince retrieves transfers recorded after the given time,
// oldest first. Used by the reconciliation worker to verify recent signatures
// against the chain.
func (s *Store) ListShareTransfersSince(ctx context.Context, since time.Time, limit int32) ([]*ShareTransfer, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+shareTransferColumns+` FROM share_transfers
		WHERE transferred_at > $1
		ORDER BY transferred_at ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*ShareTransfer
	for rows.Next() {
		st, err := scanShareTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, st)
	}
	return transfers, rows.Err()
}
