package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, statusCode int, success bool, data any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"data":    data,
		"error":   errMsg,
	})
}

func TestCreateProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/products", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateProductRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "4006381333931", req.GTIN)

		writeEnvelope(w, http.StatusCreated, true, Product{
			ID:          1,
			GTIN:        req.GTIN,
			ProductName: req.ProductName,
			Company:     req.Company,
			Category:    req.Category,
			IsActive:    true,
			CreatedAt:   time.Now().UTC(),
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	p, err := c.CreateProduct(context.Background(), CreateProductRequest{
		GTIN:        "4006381333931",
		ProductName: "Widget",
		Company:     "Acme Corp",
		Category:    "widgets",
	})
	require.NoError(t, err)
	assert.Equal(t, "4006381333931", p.GTIN)
	assert.True(t, p.IsActive)
}

func TestCreateProduct_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, false, nil, "product with this GTIN already exists")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.CreateProduct(context.Background(), CreateProductRequest{GTIN: "4006381333931"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestGetProduct_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, false, nil, "product not found")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.GetProduct(context.Background(), "4006381333931")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product not found")
}

func TestListProducts_Filters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Acme Corp", r.URL.Query().Get("company"))
		assert.Equal(t, "widgets", r.URL.Query().Get("category"))
		writeEnvelope(w, http.StatusOK, true, []Product{
			{ID: 1, GTIN: "4006381333931"},
			{ID: 2, GTIN: "96385074"},
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	products, err := c.ListProducts(context.Background(), "Acme Corp", "widgets")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "96385074", products[1].GTIN)
}

func TestVerifyItem(t *testing.T) {
	mint := "NFTMint1111111111111111111111111111111111111"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/items/SN-001/verify", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, VerifyItemResult{
			SerialNumber:   "SN-001",
			Verified:       true,
			NFTMintAddress: &mint,
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.VerifyItem(context.Background(), "SN-001")
	require.NoError(t, err)
	assert.True(t, result.Verified)
	require.NotNil(t, result.NFTMintAddress)
	assert.Equal(t, mint, *result.NFTMintAddress)
}

func TestFractionalize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/fractionalize", r.URL.Path)

		var req FractionalizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1000), req.TotalShares)

		writeEnvelope(w, http.StatusCreated, true, FractionalizeResult{
			Token: FractionalToken{
				NFTMintAddress: req.NFTMintAddress,
				ShareTokenMint: "ShareMint111111111111111111111111111111111111",
				TotalShares:    req.TotalShares,
			},
			Signature: "sig123",
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.Fractionalize(context.Background(), FractionalizeRequest{
		NFTMintAddress: "NFTMint1111111111111111111111111111111111111",
		TotalShares:    1000,
		TokenName:      "Factory Shares",
		TokenSymbol:    "FSHARE",
		CreatorName:    "Acme Corp",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig123", result.Signature)
	assert.Equal(t, int64(1000), result.Token.TotalShares)
}

func TestDistribute_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, DistributeResult{
			ShareTokenMint:   "ShareMint111111111111111111111111111111111111",
			TotalRequested:   500,
			TotalDistributed: 300,
			SuccessCount:     1,
			SenderBalance:    SenderBalance{Before: 1000, After: 700},
			Entries: []DistributionEntry{
				{WalletAddress: "WalletA", Amount: 300, Success: true, Signature: "sigA"},
				{WalletAddress: "WalletB", Amount: 200, Success: false, Error: "transfer failed"},
			},
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	result, err := c.Distribute(context.Background(), DistributeRequest{
		ShareTokenMint: "ShareMint111111111111111111111111111111111111",
		Recipients: []DistributeRecipient{
			{WalletAddress: "WalletA", Amount: 300},
			{WalletAddress: "WalletB", Amount: 200},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.TotalDistributed)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, uint64(700), result.SenderBalance.After)
	require.Len(t, result.Entries, 2)
	assert.False(t, result.Entries[1].Success)
}

func TestGetShareToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, TokenInfo{
			Token:            FractionalToken{ShareTokenMint: "ShareMint"},
			OnChainSupply:    "1000",
			AuthorityBalance: "700",
		}, "")
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	info, err := c.GetShareToken(context.Background(), "ShareMint")
	require.NoError(t, err)
	assert.Equal(t, "1000", info.OnChainSupply)
	assert.Equal(t, "700", info.AuthorityBalance)
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.GetProduct(context.Background(), "4006381333931")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	assert.NoError(t, c.Health(context.Background()))
}
