package fractional

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/metadata"
	"github.com/tracelot/tracelot/service/metrics"
	"github.com/tracelot/tracelot/service/nats"
	"github.com/tracelot/tracelot/service/solana"
)

// Share supply bounds. A fractionalization below two shares is pointless
// and the upper bound keeps mint amounts well inside uint64 range.
const (
	MinTotalShares = 2
	MaxTotalShares = 1_000_000
)

// MaxShareDecimals is the SPL token decimals ceiling.
const MaxShareDecimals = 9

// SPL token metadata field limits.
const (
	maxTokenNameLen   = 32
	maxTokenSymbolLen = 10
)

// distributionSenderName is recorded as the from_name on distributions made
// from the service authority account.
const distributionSenderName = "System"

// Ledger is the chain surface the service needs.
type Ledger interface {
	Signer() solanago.PublicKey
	Cluster() string
	MintExists(ctx context.Context, mint solanago.PublicKey) (bool, error)
	GetMintInfo(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error)
	GetTokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (string, error)
	CreateFungibleToken(ctx context.Context, params solana.CreateFungibleTokenParams) (*solana.CreateFungibleTokenResult, error)
	Transfer(ctx context.Context, params solana.TransferParams) (solanago.Signature, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	CreateFractionalToken(ctx context.Context, params db.CreateFractionalTokenParams) (*db.FractionalToken, error)
	GetFractionalTokenByMint(ctx context.Context, shareTokenMint string) (*db.FractionalToken, error)
	GetFractionalTokenByNFT(ctx context.Context, nftMintAddress string) (*db.FractionalToken, error)
	ListFractionalTokens(ctx context.Context, params db.ListFractionalTokensParams) ([]*db.FractionalToken, error)
	CreateShareTransfer(ctx context.Context, params db.CreateShareTransferParams) (*db.ShareTransfer, error)
	ListShareTransfers(ctx context.Context, params db.ListShareTransfersParams) ([]*db.ShareTransfer, error)
}

// Publisher emits events for confirmed transfers.
type Publisher interface {
	PublishShareTransfer(ctx context.Context, event *nats.ShareTransferEvent) error
}

// Service implements NFT fractionalization and share distribution.
type Service struct {
	ledger    Ledger
	store     Store
	uploader  metadata.Uploader
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	locks     *keyMutex
}

// NewService creates a fractionalization service. publisher and m may be
// nil, in which case events and metrics are skipped.
func NewService(ledger Ledger, store Store, uploader metadata.Uploader, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		ledger:    ledger,
		store:     store,
		uploader:  uploader,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		locks:     newKeyMutex(),
	}
}

// FractionalizeParams describes a fractionalization request.
type FractionalizeParams struct {
	NFTMintAddress string
	TotalShares    int64
	TokenName      string
	TokenSymbol    string
	Description    string // optional, defaulted from the NFT mint
	ImageURL       string // optional
	CreatorName    string
	CreatorID      string // optional
	ShareDecimals  int32  // optional, 0 mints whole shares only
}

// FractionalizeResult describes a completed fractionalization.
type FractionalizeResult struct {
	Token        *db.FractionalToken
	Signature    string
	ExplorerLink string // share token mint
	TxLink       string
}

// Fractionalize mints a fungible share token against an existing NFT. The
// full supply lands in the service authority account, ready to distribute.
func (s *Service) Fractionalize(ctx context.Context, params FractionalizeParams) (*FractionalizeResult, error) {
	start := time.Now()
	result, err := s.fractionalize(ctx, params)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordFractionalization(status, time.Since(start).Seconds())
	}
	return result, err
}

func (s *Service) fractionalize(ctx context.Context, params FractionalizeParams) (*FractionalizeResult, error) {
	nftMint, err := solanago.PublicKeyFromBase58(params.NFTMintAddress)
	if err != nil {
		return nil, &ValidationError{Field: "nftMintAddress", Message: "not a valid address"}
	}
	if params.TotalShares < MinTotalShares || params.TotalShares > MaxTotalShares {
		return nil, &ValidationError{
			Field:   "totalShares",
			Message: fmt.Sprintf("must be between %d and %d", MinTotalShares, MaxTotalShares),
		}
	}
	if params.TokenName == "" {
		return nil, &ValidationError{Field: "tokenName", Message: "is required"}
	}
	if params.TokenSymbol == "" {
		return nil, &ValidationError{Field: "tokenSymbol", Message: "is required"}
	}
	if params.CreatorName == "" {
		return nil, &ValidationError{Field: "creatorName", Message: "is required"}
	}
	if params.ShareDecimals < 0 || params.ShareDecimals > MaxShareDecimals {
		return nil, &ValidationError{
			Field:   "shareDecimals",
			Message: fmt.Sprintf("must be between 0 and %d", MaxShareDecimals),
		}
	}

	name := truncate(params.TokenName, maxTokenNameLen)
	symbol := truncate(params.TokenSymbol, maxTokenSymbolLen)

	exists, err := s.ledger.MintExists(ctx, nftMint)
	if err != nil {
		return nil, &LedgerError{Op: "check NFT mint", Err: err}
	}
	if !exists {
		return nil, &ValidationError{Field: "nftMintAddress", Message: "NFT not found on chain"}
	}

	if existing, err := s.store.GetFractionalTokenByNFT(ctx, params.NFTMintAddress); err == nil {
		return nil, &ConflictError{
			Resource: "fractional token",
			Message:  fmt.Sprintf("NFT already fractionalized as %s", existing.ShareTokenMint),
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, &PersistenceError{Op: "lookup fractional token", Err: err}
	}

	description := params.Description
	if description == "" {
		description = fmt.Sprintf("Fractional shares of NFT %s... - %d shares",
			params.NFTMintAddress[:8], params.TotalShares)
	}

	doc := &metadata.Document{
		Name:        name,
		Symbol:      symbol,
		Description: description,
		Image:       params.ImageURL,
		Attributes: []metadata.Attribute{
			{TraitType: "Original NFT", Value: params.NFTMintAddress},
			{TraitType: "Total Shares", Value: strconv.FormatInt(params.TotalShares, 10)},
			{TraitType: "Creator Name", Value: params.CreatorName},
		},
	}
	if params.CreatorID != "" {
		doc.Attributes = append(doc.Attributes,
			metadata.Attribute{TraitType: "Creator ID", Value: params.CreatorID})
	}
	doc.Attributes = append(doc.Attributes,
		metadata.Attribute{TraitType: "Created At", Value: time.Now().UTC().Format(time.RFC3339)})

	uri, err := s.uploader.Upload(ctx, doc)
	if err != nil {
		return nil, &LedgerError{Op: "upload metadata", Err: err}
	}

	minted, err := s.ledger.CreateFungibleToken(ctx, solana.CreateFungibleTokenParams{
		TotalShares: uint64(params.TotalShares),
		Decimals:    uint8(params.ShareDecimals),
		MetadataURI: uri,
	})
	if err != nil {
		return nil, &LedgerError{Op: "create fungible token", Err: err}
	}

	cluster := s.ledger.Cluster()
	explorerLink := solana.ExplorerAddressURL(cluster, minted.Mint.String())

	token, err := s.store.CreateFractionalToken(ctx, db.CreateFractionalTokenParams{
		NFTMintAddress: params.NFTMintAddress,
		ShareTokenMint: minted.Mint.String(),
		TokenName:      name,
		TokenSymbol:    symbol,
		TotalShares:    params.TotalShares,
		Decimals:       params.ShareDecimals,
		Description:    &description,
		ImageURL:       optional(params.ImageURL),
		MetadataURI:    &uri,
		CreatorAddress: s.ledger.Signer().String(),
		CreatorName:    params.CreatorName,
		CreatorID:      optional(params.CreatorID),
		ExplorerLink:   explorerLink,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, &ConflictError{Resource: "fractional token", Message: "NFT already fractionalized"}
		}
		// The token exists on chain at this point. Surface the failure so
		// the operator can reconcile rather than silently losing the mint.
		s.logger.ErrorContext(ctx, "minted token but failed to persist record",
			"mint", minted.Mint.String(),
			"signature", minted.Signature.String(),
			"error", err,
		)
		return nil, &PersistenceError{Op: "record fractional token", Err: err}
	}

	s.logger.InfoContext(ctx, "fractionalized NFT",
		"nft_mint", params.NFTMintAddress,
		"share_token_mint", token.ShareTokenMint,
		"total_shares", token.TotalShares,
	)

	return &FractionalizeResult{
		Token:        token,
		Signature:    minted.Signature.String(),
		ExplorerLink: explorerLink,
		TxLink:       solana.ExplorerTxURL(cluster, minted.Signature.String()),
	}, nil
}

// Recipient is one target of a distribution.
type Recipient struct {
	WalletAddress string
	Amount        int64
	Name          string // optional
	ID            string // optional
	Note          string // optional, recorded on-chain in a memo
}

// DistributeParams describes a share distribution request.
type DistributeParams struct {
	ShareTokenMint string
	Recipients     []Recipient
}

// DistributionEntry is the per-recipient outcome of a distribution.
type DistributionEntry struct {
	WalletAddress string
	Amount        int64
	Success       bool
	Signature     string
	ExplorerLink  string
	Error         string
}

// DistributeResult summarizes a distribution. TotalRequested is the sum of
// all requested amounts; TotalDistributed counts confirmed transfers only.
// SenderBalanceAfter is re-queried from the ledger once the loop completes;
// if that query fails it falls back to SenderBalanceBefore minus
// TotalDistributed.
type DistributeResult struct {
	ShareTokenMint      string
	FromAddress         string
	FromName            string
	TotalRequested      int64
	TotalDistributed    int64
	SuccessCount        int
	SenderBalanceBefore uint64
	SenderBalanceAfter  uint64
	TransferredAt       time.Time
	Entries             []DistributionEntry
	ExplorerLinks       []string // successful transfers only
}

// Distribute sends shares from the service authority to each recipient in
// order. A failed transfer does not abort the remaining ones. Distributions
// for the same mint are serialized so the upfront balance check holds for
// the whole run.
func (s *Service) Distribute(ctx context.Context, params DistributeParams) (*DistributeResult, error) {
	result, err := s.distribute(ctx, params)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordDistribution(status, len(params.Recipients))
	}
	return result, err
}

func (s *Service) distribute(ctx context.Context, params DistributeParams) (*DistributeResult, error) {
	mint, err := solanago.PublicKeyFromBase58(params.ShareTokenMint)
	if err != nil {
		return nil, &ValidationError{Field: "shareTokenMint", Message: "not a valid address"}
	}
	if len(params.Recipients) == 0 {
		return nil, &ValidationError{Field: "recipients", Message: "must not be empty"}
	}

	var totalRequested int64
	recipients := make([]solanago.PublicKey, len(params.Recipients))
	for i, r := range params.Recipients {
		if r.Amount <= 0 {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("recipients[%d].amount", i),
				Message: "must be positive",
			}
		}
		pub, err := solanago.PublicKeyFromBase58(r.WalletAddress)
		if err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("recipients[%d].walletAddress", i),
				Message: "not a valid address",
			}
		}
		recipients[i] = pub
		if r.Amount > math.MaxInt64-totalRequested {
			return nil, &ValidationError{
				Field:   "recipients",
				Message: "requested amounts overflow the total",
			}
		}
		totalRequested += r.Amount
	}

	sender := s.ledger.Signer()
	unlock := s.locks.Lock(params.ShareTokenMint + "/" + sender.String())
	defer unlock()

	token, err := s.store.GetFractionalTokenByMint(ctx, params.ShareTokenMint)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "lookup fractional token", Err: err}
	}

	available, err := s.senderBalance(ctx, sender, mint)
	if err != nil {
		return nil, err
	}
	if available < uint64(totalRequested) {
		return nil, &InsufficientBalanceError{Available: available, Required: uint64(totalRequested)}
	}

	cluster := s.ledger.Cluster()
	result := &DistributeResult{
		ShareTokenMint:      params.ShareTokenMint,
		FromAddress:         sender.String(),
		FromName:            distributionSenderName,
		TotalRequested:      totalRequested,
		SenderBalanceBefore: available,
		TransferredAt:       time.Now().UTC(),
		Entries:             make([]DistributionEntry, len(params.Recipients)),
	}

	for i, r := range params.Recipients {
		entry := DistributionEntry{WalletAddress: r.WalletAddress, Amount: r.Amount}

		transferStart := time.Now()
		sig, err := s.ledger.Transfer(ctx, solana.TransferParams{
			Mint:      mint,
			Recipient: recipients[i],
			Amount:    uint64(r.Amount),
			Note:      r.Note,
		})
		if s.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			s.metrics.RecordShareTransfer(params.ShareTokenMint, status, time.Since(transferStart).Seconds())
		}
		if err != nil {
			entry.Error = err.Error()
			result.Entries[i] = entry
			s.logger.WarnContext(ctx, "share transfer failed",
				"mint", params.ShareTokenMint,
				"recipient", r.WalletAddress,
				"amount", r.Amount,
				"error", err,
			)
			continue
		}

		entry.Success = true
		entry.Signature = sig.String()
		entry.ExplorerLink = solana.ExplorerTxURL(cluster, sig.String())
		result.Entries[i] = entry
		result.TotalDistributed += r.Amount
		result.SuccessCount++
		result.ExplorerLinks = append(result.ExplorerLinks, entry.ExplorerLink)

		fromName := distributionSenderName
		record, err := s.store.CreateShareTransfer(ctx, db.CreateShareTransferParams{
			ShareTokenMint: params.ShareTokenMint,
			TokenName:      token.TokenName,
			TokenSymbol:    token.TokenSymbol,
			FromAddress:    sender.String(),
			FromName:       &fromName,
			ToAddress:      r.WalletAddress,
			ToName:         optional(r.Name),
			ToID:           optional(r.ID),
			Amount:         strconv.FormatInt(r.Amount, 10),
			Signature:      sig.String(),
			ExplorerLink:   entry.ExplorerLink,
			Note:           optional(r.Note),
			TransferredAt:  time.Now().UTC(),
		})
		if err != nil {
			// The transfer is confirmed on chain; losing the record is an
			// operational problem, not a reason to abort the distribution.
			s.logger.ErrorContext(ctx, "confirmed transfer but failed to persist record",
				"signature", sig.String(),
				"recipient", r.WalletAddress,
				"error", err,
			)
			continue
		}

		if s.publisher != nil {
			if err := s.publisher.PublishShareTransfer(ctx, nats.FromDBShareTransfer(record)); err != nil {
				s.logger.WarnContext(ctx, "failed to publish transfer event",
					"signature", sig.String(),
					"error", err,
				)
			}
		}
	}

	after, err := s.senderBalance(ctx, sender, mint)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to re-query sender balance after distribution",
			"mint", params.ShareTokenMint,
			"error", err,
		)
		after = result.SenderBalanceBefore - uint64(result.TotalDistributed)
	}
	result.SenderBalanceAfter = after

	s.logger.InfoContext(ctx, "distribution complete",
		"mint", params.ShareTokenMint,
		"recipients", len(params.Recipients),
		"total_requested", result.TotalRequested,
		"total_distributed", result.TotalDistributed,
		"success_count", result.SuccessCount,
		"sender_balance_after", result.SenderBalanceAfter,
	)

	return result, nil
}

func (s *Service) senderBalance(ctx context.Context, sender, mint solanago.PublicKey) (uint64, error) {
	raw, err := s.ledger.GetTokenBalance(ctx, sender, mint)
	if errors.Is(err, solana.ErrNoTokenAccount) {
		return 0, nil
	}
	if err != nil {
		return 0, &LedgerError{Op: "get sender balance", Err: err}
	}
	available, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &LedgerError{Op: "parse sender balance", Err: err}
	}
	return available, nil
}

// TokenInfo combines the persisted record with live chain state.
type TokenInfo struct {
	Token            *db.FractionalToken
	OnChainSupply    string
	AuthorityBalance string // shares still held by the service authority
}

// GetTokenInfo returns the stored token record alongside current supply and
// the authority's remaining balance.
func (s *Service) GetTokenInfo(ctx context.Context, shareTokenMint string) (*TokenInfo, error) {
	mint, err := solanago.PublicKeyFromBase58(shareTokenMint)
	if err != nil {
		return nil, &ValidationError{Field: "shareTokenMint", Message: "not a valid address"}
	}

	token, err := s.store.GetFractionalTokenByMint(ctx, shareTokenMint)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "lookup fractional token", Err: err}
	}

	info := &TokenInfo{Token: token}

	mintInfo, err := s.ledger.GetMintInfo(ctx, mint)
	if err != nil {
		return nil, &LedgerError{Op: "get mint info", Err: err}
	}
	info.OnChainSupply = mintInfo.Supply

	balance, err := s.ledger.GetTokenBalance(ctx, s.ledger.Signer(), mint)
	if errors.Is(err, solana.ErrNoTokenAccount) {
		info.AuthorityBalance = "0"
	} else if err != nil {
		return nil, &LedgerError{Op: "get authority balance", Err: err}
	} else {
		info.AuthorityBalance = balance
	}

	return info, nil
}

// ListTokens returns persisted share tokens.
func (s *Service) ListTokens(ctx context.Context, params db.ListFractionalTokensParams) ([]*db.FractionalToken, error) {
	return s.store.ListFractionalTokens(ctx, params)
}

// ListTransfers returns persisted transfers.
func (s *Service) ListTransfers(ctx context.Context, params db.ListShareTransfersParams) ([]*db.ShareTransfer, error) {
	return s.store.ListShareTransfers(ctx, params)
}

// truncate cuts s to at most max runes, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
