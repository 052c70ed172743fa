package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestProduct(t *testing.T, store *TestStore, gtin string) *Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), testProductParams(gtin))
	require.NoError(t, err)
	return product
}

func createTestBatch(t *testing.T, store *TestStore, productID int64, name string) *Batch {
	t.Helper()
	batch, err := store.CreateBatch(context.Background(), CreateBatchParams{
		BatchName:             name,
		ProductID:             productID,
		ManufacturingFacility: "Plant 7",
		ProductionLine:        "Line A",
		StartDate:             time.Now().UTC(),
		PlannedQuantity:       100,
	})
	require.NoError(t, err)
	return batch
}

func TestCreateBatch_Defaults(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	assert.Equal(t, BatchStatusPlanned, batch.Status)
	assert.Equal(t, int32(0), batch.ProducedQuantity)
	assert.Nil(t, batch.EndDate)
}

func TestCreateBatch_DuplicateNamePerProduct(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	other := createTestProduct(t, store, "01234567890135")

	createTestBatch(t, store, product.ID, "2026-W35-001")

	// Same name under a different product is fine.
	_, err := store.CreateBatch(ctx, CreateBatchParams{
		BatchName:             "2026-W35-001",
		ProductID:             other.ID,
		ManufacturingFacility: "Plant 7",
		ProductionLine:        "Line A",
		StartDate:             time.Now().UTC(),
		PlannedQuantity:       50,
	})
	require.NoError(t, err)

	// Same name under the same product violates the unique constraint.
	_, err = store.CreateBatch(ctx, CreateBatchParams{
		BatchName:             "2026-W35-001",
		ProductID:             product.ID,
		ManufacturingFacility: "Plant 7",
		ProductionLine:        "Line A",
		StartDate:             time.Now().UTC(),
		PlannedQuantity:       50,
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestAdjustBatchProducedQuantity(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	updated, err := store.AdjustBatchProducedQuantity(ctx, batch.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), updated.ProducedQuantity)

	updated, err = store.AdjustBatchProducedQuantity(ctx, batch.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), updated.ProducedQuantity)
}

func TestDeleteBatch_WithItemsFails(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	_, err := store.CreateItem(ctx, CreateItemParams{
		SerialNumber:          "SN-0001",
		BatchID:               batch.ID,
		ManufacturingDate:     time.Now().UTC(),
		ManufacturingOperator: "op-1",
	})
	require.NoError(t, err)

	// Items reference the batch, so the delete violates the FK.
	err = store.DeleteBatch(ctx, batch.ID)
	require.Error(t, err)
}

func TestCreateItem_Defaults(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	item, err := store.CreateItem(ctx, CreateItemParams{
		SerialNumber:          "SN-0001",
		BatchID:               batch.ID,
		ManufacturingDate:     time.Now().UTC(),
		ManufacturingOperator: "op-1",
	})
	require.NoError(t, err)

	assert.Equal(t, QualityStatusPending, item.QualityStatus)
	assert.Equal(t, ItemStatusManufactured, item.Status)
	assert.Nil(t, item.QualityInspector)
	assert.Nil(t, item.NFTMintAddress)
}

func TestCreateItem_DuplicateSerial(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	params := CreateItemParams{
		SerialNumber:          "SN-0001",
		BatchID:               batch.ID,
		ManufacturingDate:     time.Now().UTC(),
		ManufacturingOperator: "op-1",
	}
	_, err := store.CreateItem(ctx, params)
	require.NoError(t, err)

	_, err = store.CreateItem(ctx, params)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestRecordQualityInspection(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	item, err := store.CreateItem(ctx, CreateItemParams{
		SerialNumber:          "SN-0001",
		BatchID:               batch.ID,
		ManufacturingDate:     time.Now().UTC(),
		ManufacturingOperator: "op-1",
	})
	require.NoError(t, err)

	inspectedAt := time.Now().UTC()
	updated, err := store.RecordQualityInspection(ctx, item.SerialNumber, QualityInspectionParams{
		QualityStatus:    QualityStatusPassed,
		QualityInspector: "inspector-9",
		QualityNotes:     strPtr("all checks passed"),
		InspectedAt:      inspectedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, QualityStatusPassed, updated.QualityStatus)
	require.NotNil(t, updated.QualityInspector)
	assert.Equal(t, "inspector-9", *updated.QualityInspector)
	require.NotNil(t, updated.QualityInspectionDate)
	assert.WithinDuration(t, inspectedAt, *updated.QualityInspectionDate, time.Second)
}

func TestListItems_Filters(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	b1 := createTestBatch(t, store, product.ID, "2026-W35-001")
	b2 := createTestBatch(t, store, product.ID, "2026-W35-002")

	for i, spec := range []struct {
		serial  string
		batchID int64
	}{
		{"SN-0001", b1.ID},
		{"SN-0002", b1.ID},
		{"SN-0003", b2.ID},
	} {
		_, err := store.CreateItem(ctx, CreateItemParams{
			SerialNumber:          spec.serial,
			BatchID:               spec.batchID,
			ManufacturingDate:     time.Now().UTC().Add(time.Duration(i) * time.Minute),
			ManufacturingOperator: "op-1",
		})
		require.NoError(t, err)
	}

	_, err := store.RecordQualityInspection(ctx, "SN-0001", QualityInspectionParams{
		QualityStatus:    QualityStatusFailed,
		QualityInspector: "inspector-9",
		InspectedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	inBatch, err := store.ListItems(ctx, ListItemsParams{BatchID: b1.ID})
	require.NoError(t, err)
	assert.Len(t, inBatch, 2)

	failed, err := store.ListItems(ctx, ListItemsParams{QualityStatus: QualityStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "SN-0001", failed[0].SerialNumber)

	limited, err := store.ListItems(ctx, ListItemsParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGetBatchStats(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	batch := createTestBatch(t, store, product.ID, "2026-W35-001")

	for _, serial := range []string{"SN-0001", "SN-0002", "SN-0003"} {
		_, err := store.CreateItem(ctx, CreateItemParams{
			SerialNumber:          serial,
			BatchID:               batch.ID,
			ManufacturingDate:     time.Now().UTC(),
			ManufacturingOperator: "op-1",
		})
		require.NoError(t, err)
	}
	_, err := store.RecordQualityInspection(ctx, "SN-0001", QualityInspectionParams{
		QualityStatus:    QualityStatusPassed,
		QualityInspector: "inspector-9",
		InspectedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	stats, err := store.GetBatchStats(ctx, batch.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.ItemCount)
	assert.Equal(t, int64(3), stats.ItemsByStatus[ItemStatusManufactured])
	assert.Equal(t, int64(1), stats.ItemsByQuality[QualityStatusPassed])
	assert.Equal(t, int64(2), stats.ItemsByQuality[QualityStatusPending])
}

func TestGetProductStats(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	product := createTestProduct(t, store, "01234567890128")
	b1 := createTestBatch(t, store, product.ID, "2026-W35-001")
	b2 := createTestBatch(t, store, product.ID, "2026-W35-002")

	for _, spec := range []struct {
		serial  string
		batchID int64
	}{
		{"SN-0001", b1.ID},
		{"SN-0002", b2.ID},
	} {
		_, err := store.CreateItem(ctx, CreateItemParams{
			SerialNumber:          spec.serial,
			BatchID:               spec.batchID,
			ManufacturingDate:     time.Now().UTC(),
			ManufacturingOperator: "op-1",
		})
		require.NoError(t, err)
	}

	stats, err := store.GetProductStats(ctx, product.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.BatchCount)
	assert.Equal(t, int64(2), stats.ItemCount)
	assert.Equal(t, int64(200), stats.PlannedTotal)
}
