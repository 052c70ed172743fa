package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/fractional"
)

// writeServiceError maps fractionalization service errors to HTTP responses.
// Ledger and persistence failures are logged with detail but reported
// generically.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var valErr *fractional.ValidationError
	var balErr *fractional.InsufficientBalanceError
	var conflictErr *fractional.ConflictError

	switch {
	case errors.As(err, &valErr):
		writeError(w, valErr.Error(), http.StatusBadRequest)
	case errors.As(err, &balErr):
		writeError(w, balErr.Error(), http.StatusBadRequest)
	case errors.As(err, &conflictErr):
		writeError(w, conflictErr.Error(), http.StatusConflict)
	case errors.Is(err, db.ErrNotFound):
		writeError(w, "share token not found", http.StatusNotFound)
	default:
		logger.Error("fractionalization request failed", "op", op, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

type fractionalizeRequest struct {
	NFTMintAddress string `json:"nftMintAddress"`
	TotalShares    int64  `json:"totalShares"`
	TokenName      string `json:"tokenName"`
	TokenSymbol    string `json:"tokenSymbol"`
	Description    string `json:"description"`
	ImageURL       string `json:"imageUrl"`
	CreatorName    string `json:"creatorName"`
	CreatorID      string `json:"creatorId"`
	ShareDecimals  int32  `json:"shareDecimals"`
}

type fractionalTokenResponse struct {
	ID             int64     `json:"id"`
	NFTMintAddress string    `json:"nftMintAddress"`
	ShareTokenMint string    `json:"shareTokenMint"`
	TokenName      string    `json:"tokenName"`
	TokenSymbol    string    `json:"tokenSymbol"`
	TotalShares    int64     `json:"totalShares"`
	Decimals       int32     `json:"decimals"`
	Description    *string   `json:"description,omitempty"`
	ImageURL       *string   `json:"imageUrl,omitempty"`
	MetadataURI    *string   `json:"metadataUri,omitempty"`
	CreatorAddress string    `json:"creatorAddress"`
	CreatorName    string    `json:"creatorName"`
	CreatorID      *string   `json:"creatorId,omitempty"`
	ExplorerLink   string    `json:"explorerLink"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func fractionalTokenToResponse(ft *db.FractionalToken) fractionalTokenResponse {
	return fractionalTokenResponse{
		ID:             ft.ID,
		NFTMintAddress: ft.NFTMintAddress,
		ShareTokenMint: ft.ShareTokenMint,
		TokenName:      ft.TokenName,
		TokenSymbol:    ft.TokenSymbol,
		TotalShares:    ft.TotalShares,
		Decimals:       ft.Decimals,
		Description:    ft.Description,
		ImageURL:       ft.ImageURL,
		MetadataURI:    ft.MetadataURI,
		CreatorAddress: ft.CreatorAddress,
		CreatorName:    ft.CreatorName,
		CreatorID:      ft.CreatorID,
		ExplorerLink:   ft.ExplorerLink,
		IsActive:       ft.IsActive,
		CreatedAt:      ft.CreatedAt,
		UpdatedAt:      ft.UpdatedAt,
	}
}

type fractionalizeResponse struct {
	Token        fractionalTokenResponse `json:"token"`
	Signature    string                  `json:"signature"`
	ExplorerLink string                  `json:"explorerLink"`
	TxLink       string                  `json:"txLink"`
}

// handleFractionalize returns a handler that mints a fungible share token
// against an existing NFT.
// POST /api/v1/fractionalize
func handleFractionalize(svc FractionalService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fractionalizeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := svc.Fractionalize(r.Context(), fractional.FractionalizeParams{
			NFTMintAddress: req.NFTMintAddress,
			TotalShares:    req.TotalShares,
			TokenName:      req.TokenName,
			TokenSymbol:    req.TokenSymbol,
			Description:    req.Description,
			ImageURL:       req.ImageURL,
			CreatorName:    req.CreatorName,
			CreatorID:      req.CreatorID,
			ShareDecimals:  req.ShareDecimals,
		})
		if err != nil {
			writeServiceError(w, logger, "fractionalize", err)
			return
		}

		logger.Info("NFT fractionalized",
			"nft_mint", req.NFTMintAddress,
			"share_token_mint", result.Token.ShareTokenMint,
			"total_shares", result.Token.TotalShares,
		)
		writeMessage(w, http.StatusCreated, "NFT fractionalized", fractionalizeResponse{
			Token:        fractionalTokenToResponse(result.Token),
			Signature:    result.Signature,
			ExplorerLink: result.ExplorerLink,
			TxLink:       result.TxLink,
		})
	})
}

type distributeRecipient struct {
	WalletAddress string `json:"walletAddress"`
	Amount        int64  `json:"amount"`
	Name          string `json:"name"`
	ID            string `json:"id"`
	Note          string `json:"note"`
}

type distributeRequest struct {
	ShareTokenMint string                `json:"shareTokenMint"`
	Recipients     []distributeRecipient `json:"recipients"`
}

type distributionEntryResponse struct {
	WalletAddress string `json:"walletAddress"`
	Amount        int64  `json:"amount"`
	Success       bool   `json:"success"`
	Signature     string `json:"signature,omitempty"`
	ExplorerLink  string `json:"explorerLink,omitempty"`
	Error         string `json:"error,omitempty"`
}

type senderBalanceResponse struct {
	Before uint64 `json:"before"`
	After  uint64 `json:"after"`
}

type distributeResponse struct {
	ShareTokenMint   string                      `json:"shareTokenMint"`
	FromAddress      string                      `json:"fromAddress"`
	FromName         string                      `json:"fromName"`
	TotalRequested   int64                       `json:"totalRequested"`
	TotalDistributed int64                       `json:"totalDistributed"`
	SuccessCount     int                         `json:"successCount"`
	SenderBalance    senderBalanceResponse       `json:"senderBalance"`
	TransferredAt    time.Time                   `json:"transferredAt"`
	Entries          []distributionEntryResponse `json:"entries"`
	ExplorerLinks    []string                    `json:"explorerLinks"`
}

// handleDistribute returns a handler that transfers shares to a list of
// recipient wallets. Per-recipient outcomes are reported individually;
// partial failure still returns 200.
// POST /api/v1/fractionalize/distribute
func handleDistribute(svc FractionalService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req distributeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		recipients := make([]fractional.Recipient, len(req.Recipients))
		for i, rec := range req.Recipients {
			recipients[i] = fractional.Recipient{
				WalletAddress: rec.WalletAddress,
				Amount:        rec.Amount,
				Name:          rec.Name,
				ID:            rec.ID,
				Note:          rec.Note,
			}
		}

		result, err := svc.Distribute(r.Context(), fractional.DistributeParams{
			ShareTokenMint: req.ShareTokenMint,
			Recipients:     recipients,
		})
		if err != nil {
			writeServiceError(w, logger, "distribute", err)
			return
		}

		entries := make([]distributionEntryResponse, len(result.Entries))
		for i, e := range result.Entries {
			entries[i] = distributionEntryResponse{
				WalletAddress: e.WalletAddress,
				Amount:        e.Amount,
				Success:       e.Success,
				Signature:     e.Signature,
				ExplorerLink:  e.ExplorerLink,
				Error:         e.Error,
			}
		}

		logger.Info("shares distributed",
			"share_token_mint", result.ShareTokenMint,
			"total_requested", result.TotalRequested,
			"total_distributed", result.TotalDistributed,
			"success_count", result.SuccessCount,
			"recipients", len(result.Entries),
		)
		writeMessage(w, http.StatusOK, "distribution complete", distributeResponse{
			ShareTokenMint:   result.ShareTokenMint,
			FromAddress:      result.FromAddress,
			FromName:         result.FromName,
			TotalRequested:   result.TotalRequested,
			TotalDistributed: result.TotalDistributed,
			SuccessCount:     result.SuccessCount,
			SenderBalance: senderBalanceResponse{
				Before: result.SenderBalanceBefore,
				After:  result.SenderBalanceAfter,
			},
			TransferredAt: result.TransferredAt,
			Entries:       entries,
			ExplorerLinks: result.ExplorerLinks,
		})
	})
}

type tokenInfoResponse struct {
	Token            fractionalTokenResponse `json:"token"`
	OnChainSupply    string                  `json:"onChainSupply"`
	AuthorityBalance string                  `json:"authorityBalance"`
}

// handleGetTokenInfo returns a handler that combines the stored token record
// with live chain state.
// GET /api/v1/fractionalize/token/{shareTokenMint}
func handleGetTokenInfo(svc FractionalService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("shareTokenMint")

		info, err := svc.GetTokenInfo(r.Context(), mint)
		if err != nil {
			writeServiceError(w, logger, "get token info", err)
			return
		}

		writeData(w, http.StatusOK, tokenInfoResponse{
			Token:            fractionalTokenToResponse(info.Token),
			OnChainSupply:    info.OnChainSupply,
			AuthorityBalance: info.AuthorityBalance,
		})
	})
}

// handleListTokens returns a handler that lists share token records.
// GET /api/v1/fractionalize/tokens?creatorAddress=&isActive=&limit=&offset=
func handleListTokens(svc FractionalService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListFractionalTokensParams{
			CreatorAddress: r.URL.Query().Get("creatorAddress"),
		}
		if raw := r.URL.Query().Get("isActive"); raw != "" {
			active := raw == "true"
			params.IsActive = &active
		}
		params.Limit, params.Offset = parseLimitOffset(r)

		tokens, err := svc.ListTokens(r.Context(), params)
		if err != nil {
			writeServiceError(w, logger, "list tokens", err)
			return
		}

		resp := make([]fractionalTokenResponse, len(tokens))
		for i, t := range tokens {
			resp[i] = fractionalTokenToResponse(t)
		}
		writeData(w, http.StatusOK, resp)
	})
}

type shareTransferResponse struct {
	ID             int64     `json:"id"`
	ShareTokenMint string    `json:"shareTokenMint"`
	TokenName      string    `json:"tokenName"`
	TokenSymbol    string    `json:"tokenSymbol"`
	FromAddress    string    `json:"fromAddress"`
	FromName       *string   `json:"fromName,omitempty"`
	ToAddress      string    `json:"toAddress"`
	ToName         *string   `json:"toName,omitempty"`
	ToID           *string   `json:"toId,omitempty"`
	Amount         string    `json:"amount"`
	Signature      string    `json:"signature"`
	ExplorerLink   string    `json:"explorerLink"`
	Note           *string   `json:"note,omitempty"`
	TransferredAt  time.Time `json:"transferredAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// handleListTransfers returns a handler that lists persisted share transfers.
// GET /api/v1/fractionalize/transfers?shareTokenMint=&toAddress=&limit=&offset=
func handleListTransfers(svc FractionalService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListShareTransfersParams{
			ShareTokenMint: r.URL.Query().Get("shareTokenMint"),
			ToAddress:      r.URL.Query().Get("toAddress"),
		}
		params.Limit, params.Offset = parseLimitOffset(r)

		transfers, err := svc.ListTransfers(r.Context(), params)
		if err != nil {
			writeServiceError(w, logger, "list transfers", err)
			return
		}

		resp := make([]shareTransferResponse, len(transfers))
		for i, t := range transfers {
			resp[i] = shareTransferResponse{
				ID:             t.ID,
				ShareTokenMint: t.ShareTokenMint,
				TokenName:      t.TokenName,
				TokenSymbol:    t.TokenSymbol,
				FromAddress:    t.FromAddress,
				FromName:       t.FromName,
				ToAddress:      t.ToAddress,
				ToName:         t.ToName,
				ToID:           t.ToID,
				Amount:         t.Amount,
				Signature:      t.Signature,
				ExplorerLink:   t.ExplorerLink,
				Note:           t.Note,
				TransferredAt:  t.TransferredAt,
				CreatedAt:      t.CreatedAt,
			}
		}
		writeData(w, http.StatusOK, resp)
	})
}
