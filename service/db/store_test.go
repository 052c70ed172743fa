package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func int32Ptr(n int32) *int32 { return &n }

func boolPtr(b bool) *bool { return &b }

func testProductParams(gtin string) CreateProductParams {
	return CreateProductParams{
		GTIN:           gtin,
		ProductName:    "Widget Mark II",
		Company:        "Acme Manufacturing",
		Category:       "widgets",
		Description:    strPtr("A widget"),
		Model:          strPtr("MK2"),
		Specifications: []byte(`{"weight_g": 120}`),
		WarrantyMonths: int32Ptr(24),
	}
}

func TestCreateProduct(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := testProductParams("01234567890128")

	product, err := store.CreateProduct(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, product)

	assert.Equal(t, params.GTIN, product.GTIN)
	assert.Equal(t, params.ProductName, product.ProductName)
	assert.Equal(t, params.Company, product.Company)
	assert.True(t, product.IsActive)
	assert.False(t, product.CreatedAt.IsZero())
	assert.JSONEq(t, `{"weight_g": 120}`, string(product.Specifications))
}

func TestCreateProduct_DuplicateGTIN(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	params := testProductParams("01234567890128")

	_, err := store.CreateProduct(ctx, params)
	require.NoError(t, err)

	_, err = store.CreateProduct(ctx, params)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestGetProductByGTIN_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	product, err := store.GetProductByGTIN(context.Background(), "00000000000000")
	require.Error(t, err)
	assert.Nil(t, product)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProducts_Filters(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	p1 := testProductParams("01234567890128")
	p2 := testProductParams("01234567890135")
	p2.Company = "Globex"
	p2.Category = "gadgets"

	_, err := store.CreateProduct(ctx, p1)
	require.NoError(t, err)
	created2, err := store.CreateProduct(ctx, p2)
	require.NoError(t, err)

	all, err := store.ListProducts(ctx, ListProductsParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byCompany, err := store.ListProducts(ctx, ListProductsParams{Company: "Globex"})
	require.NoError(t, err)
	require.Len(t, byCompany, 1)
	assert.Equal(t, created2.GTIN, byCompany[0].GTIN)

	_, err = store.SetProductActive(ctx, created2.GTIN, false)
	require.NoError(t, err)

	active, err := store.ListProducts(ctx, ListProductsParams{IsActive: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, p1.GTIN, active[0].GTIN)
}

func TestUpdateProduct(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	created, err := store.CreateProduct(ctx, testProductParams("01234567890128"))
	require.NoError(t, err)

	updated, err := store.UpdateProduct(ctx, created.GTIN, UpdateProductParams{
		ProductName:    "Widget Mark III",
		Company:        created.Company,
		Category:       created.Category,
		Description:    created.Description,
		Model:          strPtr("MK3"),
		Specifications: created.Specifications,
		WarrantyMonths: created.WarrantyMonths,
		NFTMintAddress: strPtr("So11111111111111111111111111111111111111112"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Widget Mark III", updated.ProductName)
	require.NotNil(t, updated.Model)
	assert.Equal(t, "MK3", *updated.Model)
	require.NotNil(t, updated.NFTMintAddress)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

func TestDeleteProduct(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	created, err := store.CreateProduct(ctx, testProductParams("01234567890128"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteProduct(ctx, created.GTIN))

	err = store.DeleteProduct(ctx, created.GTIN)
	assert.ErrorIs(t, err, ErrNotFound)
}
