package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracelot/tracelot/service/db"
	"github.com/tracelot/tracelot/service/fractional"
)

// fakeFractionalService returns scripted results so handler tests can focus
// on request decoding and status code mapping.
type fakeFractionalService struct {
	fractionalizeResult *fractional.FractionalizeResult
	fractionalizeErr    error
	distributeResult    *fractional.DistributeResult
	distributeErr       error
	tokenInfo           *fractional.TokenInfo
	tokenInfoErr        error
	tokens              []*db.FractionalToken
	transfers           []*db.ShareTransfer

	lastFractionalize fractional.FractionalizeParams
	lastDistribute    fractional.DistributeParams
}

func (f *fakeFractionalService) Fractionalize(ctx context.Context, params fractional.FractionalizeParams) (*fractional.FractionalizeResult, error) {
	f.lastFractionalize = params
	return f.fractionalizeResult, f.fractionalizeErr
}

func (f *fakeFractionalService) Distribute(ctx context.Context, params fractional.DistributeParams) (*fractional.DistributeResult, error) {
	f.lastDistribute = params
	return f.distributeResult, f.distributeErr
}

func (f *fakeFractionalService) GetTokenInfo(ctx context.Context, shareTokenMint string) (*fractional.TokenInfo, error) {
	return f.tokenInfo, f.tokenInfoErr
}

func (f *fakeFractionalService) ListTokens(ctx context.Context, params db.ListFractionalTokensParams) ([]*db.FractionalToken, error) {
	return f.tokens, nil
}

func (f *fakeFractionalService) ListTransfers(ctx context.Context, params db.ListShareTransfersParams) ([]*db.ShareTransfer, error) {
	return f.transfers, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return rec, env
}

func testToken() *db.FractionalToken {
	now := time.Now().UTC()
	return &db.FractionalToken{
		ID:             1,
		NFTMintAddress: "NFTMint1111111111111111111111111111111111111",
		ShareTokenMint: "ShareMint111111111111111111111111111111111111",
		TokenName:      "Factory Shares",
		TokenSymbol:    "FSHARE",
		TotalShares:    1000,
		Decimals:       0,
		CreatorAddress: "Creator11111111111111111111111111111111111111",
		CreatorName:    "Acme Corp",
		ExplorerLink:   "https://explorer.solana.com/address/ShareMint?cluster=devnet",
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestHandleFractionalize(t *testing.T) {
	svc := &fakeFractionalService{
		fractionalizeResult: &fractional.FractionalizeResult{
			Token:        testToken(),
			Signature:    "sig123",
			ExplorerLink: "https://explorer.solana.com/address/ShareMint?cluster=devnet",
			TxLink:       "https://explorer.solana.com/tx/sig123?cluster=devnet",
		},
	}
	h := handleFractionalize(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
		"totalShares":    1000,
		"tokenName":      "Factory Shares",
		"tokenSymbol":    "FSHARE",
		"creatorName":    "Acme Corp",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, int64(1000), svc.lastFractionalize.TotalShares)
	assert.Equal(t, "Acme Corp", svc.lastFractionalize.CreatorName)
}

func TestHandleFractionalize_ShareDecimals(t *testing.T) {
	svc := &fakeFractionalService{
		fractionalizeResult: &fractional.FractionalizeResult{Token: testToken()},
	}
	h := handleFractionalize(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
		"totalShares":    1000,
		"tokenName":      "Factory Shares",
		"tokenSymbol":    "FSHARE",
		"creatorName":    "Acme Corp",
		"shareDecimals":  2,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, int32(2), svc.lastFractionalize.ShareDecimals)
}

func TestHandleFractionalize_ValidationError(t *testing.T) {
	svc := &fakeFractionalService{
		fractionalizeErr: &fractional.ValidationError{Field: "totalShares", Message: "must be between 2 and 1000000"},
	}
	h := handleFractionalize(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
		"totalShares":    1,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "totalShares")
}

func TestHandleFractionalize_Conflict(t *testing.T) {
	svc := &fakeFractionalService{
		fractionalizeErr: &fractional.ConflictError{Resource: "fractional token", Message: "NFT is already fractionalized"},
	}
	h := handleFractionalize(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleFractionalize_LedgerFailureIsGeneric(t *testing.T) {
	svc := &fakeFractionalService{
		fractionalizeErr: &fractional.LedgerError{Op: "send transaction", Err: assert.AnError},
	}
	h := handleFractionalize(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", env.Error)
}

func TestHandleFractionalize_UnknownField(t *testing.T) {
	h := handleFractionalize(&fakeFractionalService{}, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize", map[string]any{
		"nftMintAddress": "NFTMint1111111111111111111111111111111111111",
		"totallyBogus":   true,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleDistribute(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeFractionalService{
		distributeResult: &fractional.DistributeResult{
			ShareTokenMint:      "ShareMint111111111111111111111111111111111111",
			FromAddress:         "Authority111111111111111111111111111111111111",
			FromName:            "System",
			TotalRequested:      500,
			TotalDistributed:    300,
			SuccessCount:        1,
			SenderBalanceBefore: 1000,
			SenderBalanceAfter:  700,
			TransferredAt:       now,
			Entries: []fractional.DistributionEntry{
				{WalletAddress: "WalletA", Amount: 300, Success: true, Signature: "sigA"},
				{WalletAddress: "WalletB", Amount: 200, Success: false, Error: "transfer failed"},
			},
			ExplorerLinks: []string{"https://explorer.solana.com/tx/sigA?cluster=devnet"},
		},
	}
	h := handleDistribute(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize/distribute", map[string]any{
		"shareTokenMint": "ShareMint111111111111111111111111111111111111",
		"recipients": []map[string]any{
			{"walletAddress": "WalletA", "amount": 300, "note": "payout"},
			{"walletAddress": "WalletB", "amount": 200},
		},
	})

	// Partial failure is still a 200; callers read per-entry outcomes.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	require.Len(t, svc.lastDistribute.Recipients, 2)
	assert.Equal(t, "payout", svc.lastDistribute.Recipients[0].Note)
	assert.Empty(t, svc.lastDistribute.Recipients[1].Note)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var resp distributeResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, int64(500), resp.TotalRequested)
	assert.Equal(t, int64(300), resp.TotalDistributed)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Equal(t, uint64(1000), resp.SenderBalance.Before)
	assert.Equal(t, uint64(700), resp.SenderBalance.After)
	assert.Equal(t, now, resp.TransferredAt.UTC())
	assert.Len(t, resp.Entries, 2)
	assert.Len(t, resp.ExplorerLinks, 1)
}

func TestHandleDistribute_InsufficientBalance(t *testing.T) {
	svc := &fakeFractionalService{
		distributeErr: &fractional.InsufficientBalanceError{Available: 100, Required: 500},
	}
	h := handleDistribute(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize/distribute", map[string]any{
		"shareTokenMint": "ShareMint111111111111111111111111111111111111",
		"recipients":     []map[string]any{{"walletAddress": "WalletA", "amount": 500}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleDistribute_UnknownMint(t *testing.T) {
	svc := &fakeFractionalService{distributeErr: db.ErrNotFound}
	h := handleDistribute(svc, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/fractionalize/distribute", map[string]any{
		"shareTokenMint": "ShareMint111111111111111111111111111111111111",
		"recipients":     []map[string]any{{"walletAddress": "WalletA", "amount": 10}},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleGetTokenInfo(t *testing.T) {
	svc := &fakeFractionalService{
		tokenInfo: &fractional.TokenInfo{
			Token:            testToken(),
			OnChainSupply:    "1000",
			AuthorityBalance: "700",
		},
	}
	h := handleGetTokenInfo(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fractionalize/token/ShareMint", nil)
	req.SetPathValue("shareTokenMint", "ShareMint")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var resp tokenInfoResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "1000", resp.OnChainSupply)
	assert.Equal(t, "700", resp.AuthorityBalance)
}

func TestHandleGetTokenInfo_NotFound(t *testing.T) {
	svc := &fakeFractionalService{tokenInfoErr: db.ErrNotFound}
	h := handleGetTokenInfo(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fractionalize/token/Unknown", nil)
	req.SetPathValue("shareTokenMint", "Unknown")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListTokens(t *testing.T) {
	svc := &fakeFractionalService{tokens: []*db.FractionalToken{testToken()}}
	h := handleListTokens(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fractionalize/tokens?isActive=true", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Success)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var resp []fractionalTokenResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "FSHARE", resp[0].TokenSymbol)
}

func TestHandleListTransfers(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeFractionalService{
		transfers: []*db.ShareTransfer{{
			ID:             1,
			ShareTokenMint: "ShareMint111111111111111111111111111111111111",
			TokenName:      "Factory Shares",
			TokenSymbol:    "FSHARE",
			FromAddress:    "Authority111111111111111111111111111111111111",
			ToAddress:      "WalletA",
			Amount:         "300",
			Signature:      "sigA",
			ExplorerLink:   "https://explorer.solana.com/tx/sigA?cluster=devnet",
			TransferredAt:  now,
			CreatedAt:      now,
		}},
	}
	h := handleListTransfers(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fractionalize/transfers?shareTokenMint=ShareMint", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var resp []shareTransferResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "300", resp[0].Amount)
}
