package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFractionalTokenParams() CreateFractionalTokenParams {
	return CreateFractionalTokenParams{
		NFTMintAddress: "NFTmint1111111111111111111111111111111111111",
		ShareTokenMint: "Share111111111111111111111111111111111111111",
		TokenName:      "Widget Shares",
		TokenSymbol:    "WSHARE",
		TotalShares:    1000,
		Decimals:       0,
		Description:    strPtr("Fractional shares of NFT NFTmint1... - 1000 shares"),
		CreatorAddress: "Creator11111111111111111111111111111111111111",
		CreatorName:    "Acme Manufacturing",
		ExplorerLink:   "https://explorer.solana.com/address/Share111111111111111111111111111111111111111?cluster=devnet",
	}
}

func TestCreateFractionalToken(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := testFractionalTokenParams()

	ft, err := store.CreateFractionalToken(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, params.ShareTokenMint, ft.ShareTokenMint)
	assert.Equal(t, int64(1000), ft.TotalShares)
	assert.Equal(t, int32(0), ft.Decimals)
	assert.True(t, ft.IsActive)
	assert.Nil(t, ft.CreatorID)
}

func TestCreateFractionalToken_DuplicateNFT(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := testFractionalTokenParams()

	_, err := store.CreateFractionalToken(ctx, params)
	require.NoError(t, err)

	// Fractionalizing the same NFT again must fail even with a new share mint.
	params.ShareTokenMint = "Share211111111111111111111111111111111111111"
	_, err = store.CreateFractionalToken(ctx, params)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestGetFractionalTokenByMint(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	created, err := store.CreateFractionalToken(ctx, testFractionalTokenParams())
	require.NoError(t, err)

	ft, err := store.GetFractionalTokenByMint(ctx, created.ShareTokenMint)
	require.NoError(t, err)
	assert.Equal(t, created.ID, ft.ID)

	byNFT, err := store.GetFractionalTokenByNFT(ctx, created.NFTMintAddress)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byNFT.ID)

	_, err = store.GetFractionalTokenByMint(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateShareTransfer(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := CreateShareTransferParams{
		ShareTokenMint: "Share111111111111111111111111111111111111111",
		TokenName:      "Widget Shares",
		TokenSymbol:    "WSHARE",
		FromAddress:    "Creator11111111111111111111111111111111111111",
		FromName:       strPtr("System"),
		ToAddress:      "Holder111111111111111111111111111111111111111",
		ToName:         strPtr("Alice"),
		Amount:         "250",
		Signature:      "sig-1",
		ExplorerLink:   "https://explorer.solana.com/tx/sig-1?cluster=devnet",
	}

	st, err := store.CreateShareTransfer(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, "250", st.Amount)
	assert.Equal(t, "sig-1", st.Signature)
	assert.False(t, st.TransferredAt.IsZero())

	// Duplicate signature is rejected.
	_, err = store.CreateShareTransfer(ctx, params)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestListShareTransfers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, spec := range []struct {
		mint string
		sig  string
		to   string
	}{
		{"mint-a", "sig-1", "holder-1"},
		{"mint-a", "sig-2", "holder-2"},
		{"mint-b", "sig-3", "holder-1"},
	} {
		_, err := store.CreateShareTransfer(ctx, CreateShareTransferParams{
			ShareTokenMint: spec.mint,
			TokenName:      "Widget Shares",
			TokenSymbol:    "WSHARE",
			FromAddress:    "creator",
			ToAddress:      spec.to,
			Amount:         "10",
			Signature:      spec.sig,
			ExplorerLink:   "https://explorer.solana.com/tx/" + spec.sig + "?cluster=devnet",
			TransferredAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	byMint, err := store.ListShareTransfers(ctx, ListShareTransfersParams{ShareTokenMint: "mint-a"})
	require.NoError(t, err)
	require.Len(t, byMint, 2)
	// Most recent first.
	assert.Equal(t, "sig-2", byMint[0].Signature)

	byHolder, err := store.ListShareTransfers(ctx, ListShareTransfersParams{ToAddress: "holder-1"})
	require.NoError(t, err)
	assert.Len(t, byHolder, 2)

	since, err := store.ListShareTransfersSince(ctx, base.Add(30*time.Second), 100)
	require.NoError(t, err)
	require.Len(t, since, 2)
	// Oldest first for the reconciler.
	assert.Equal(t, "sig-2", since[0].Signature)
	assert.Equal(t, "sig-3", since[1].Signature)
}
