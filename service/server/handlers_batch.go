package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tracelot/tracelot/service/db"
)

var validBatchStatuses = map[string]bool{
	db.BatchStatusPlanned:    true,
	db.BatchStatusInProgress: true,
	db.BatchStatusCompleted:  true,
	db.BatchStatusCancelled:  true,
}

type createBatchRequest struct {
	BatchName                 string          `json:"batchName"`
	ProductGTIN               string          `json:"productGtin"`
	ManufacturingFacility     string          `json:"manufacturingFacility"`
	ProductionLine            string          `json:"productionLine"`
	StartDate                 time.Time       `json:"startDate"`
	PlannedQuantity           int32           `json:"plannedQuantity"`
	Status                    string          `json:"status"`
	NFTCollectionAddress      *string         `json:"nftCollectionAddress"`
	NFTCollectionExplorerLink *string         `json:"nftCollectionExplorerLink"`
	Metadata                  json.RawMessage `json:"metadata"`
}

func (req *createBatchRequest) validate() []string {
	var errs []string
	if req.BatchName == "" {
		errs = append(errs, "batchName is required")
	}
	if err := validateGTIN(req.ProductGTIN); err != nil {
		errs = append(errs, "productGtin: "+err.Error())
	}
	if req.ManufacturingFacility == "" {
		errs = append(errs, "manufacturingFacility is required")
	}
	if req.ProductionLine == "" {
		errs = append(errs, "productionLine is required")
	}
	if req.StartDate.IsZero() {
		errs = append(errs, "startDate is required")
	}
	if req.PlannedQuantity < 1 {
		errs = append(errs, "plannedQuantity must be at least 1")
	}
	if req.Status != "" && !validBatchStatuses[req.Status] {
		errs = append(errs, fmt.Sprintf("status %q is not valid", req.Status))
	}
	return errs
}

type updateBatchRequest struct {
	ManufacturingFacility     *string         `json:"manufacturingFacility"`
	ProductionLine            *string         `json:"productionLine"`
	EndDate                   *time.Time      `json:"endDate"`
	PlannedQuantity           *int32          `json:"plannedQuantity"`
	ProducedQuantity          *int32          `json:"producedQuantity"`
	Status                    *string         `json:"status"`
	NFTCollectionAddress      *string         `json:"nftCollectionAddress"`
	NFTCollectionExplorerLink *string         `json:"nftCollectionExplorerLink"`
	Metadata                  json.RawMessage `json:"metadata"`
}

type batchResponse struct {
	ID                        int64           `json:"id"`
	BatchName                 string          `json:"batchName"`
	ProductID                 int64           `json:"productId"`
	ManufacturingFacility     string          `json:"manufacturingFacility"`
	ProductionLine            string          `json:"productionLine"`
	StartDate                 time.Time       `json:"startDate"`
	EndDate                   *time.Time      `json:"endDate,omitempty"`
	PlannedQuantity           int32           `json:"plannedQuantity"`
	ProducedQuantity          int32           `json:"producedQuantity"`
	Status                    string          `json:"status"`
	NFTCollectionAddress      *string         `json:"nftCollectionAddress,omitempty"`
	NFTCollectionExplorerLink *string         `json:"nftCollectionExplorerLink,omitempty"`
	Metadata                  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

func batchToResponse(b *db.Batch) batchResponse {
	return batchResponse{
		ID:                        b.ID,
		BatchName:                 b.BatchName,
		ProductID:                 b.ProductID,
		ManufacturingFacility:     b.ManufacturingFacility,
		ProductionLine:            b.ProductionLine,
		StartDate:                 b.StartDate,
		EndDate:                   b.EndDate,
		PlannedQuantity:           b.PlannedQuantity,
		ProducedQuantity:          b.ProducedQuantity,
		Status:                    b.Status,
		NFTCollectionAddress:      b.NFTCollectionAddress,
		NFTCollectionExplorerLink: b.NFTCollectionExplorerLink,
		Metadata:                  b.Metadata,
		CreatedAt:                 b.CreatedAt,
		UpdatedAt:                 b.UpdatedAt,
	}
}

func parseBatchID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid batch id")
	}
	return id, nil
}

// handleCreateBatch returns a handler that opens a manufacturing batch
// under a product.
// POST /api/v1/batches
func handleCreateBatch(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createBatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			writeErrors(w, errs, http.StatusBadRequest)
			return
		}

		product, err := store.GetProductByGTIN(r.Context(), req.ProductGTIN)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get product", "gtin", req.ProductGTIN, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		batch, err := store.CreateBatch(r.Context(), db.CreateBatchParams{
			BatchName:                 req.BatchName,
			ProductID:                 product.ID,
			ManufacturingFacility:     req.ManufacturingFacility,
			ProductionLine:            req.ProductionLine,
			StartDate:                 req.StartDate,
			PlannedQuantity:           req.PlannedQuantity,
			Status:                    req.Status,
			NFTCollectionAddress:      req.NFTCollectionAddress,
			NFTCollectionExplorerLink: req.NFTCollectionExplorerLink,
			Metadata:                  req.Metadata,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				writeError(w, "batch with this name already exists for the product", http.StatusConflict)
				return
			}
			logger.Error("failed to create batch", "batch_name", req.BatchName, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("batch created", "batch_id", batch.ID, "batch_name", batch.BatchName, "product_id", product.ID)
		writeMessage(w, http.StatusCreated, "batch created", batchToResponse(batch))
	})
}

// handleGetBatch returns a handler that retrieves a batch by id.
// GET /api/v1/batches/{id}
func handleGetBatch(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBatchID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		batch, err := store.GetBatch(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get batch", "batch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeData(w, http.StatusOK, batchToResponse(batch))
	})
}

// handleListBatches returns a handler that lists batches with filters.
// GET /api/v1/batches?productId=&status=&limit=&offset=
func handleListBatches(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListBatchesParams{
			Status: r.URL.Query().Get("status"),
		}
		if raw := r.URL.Query().Get("productId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, "productId must be an integer", http.StatusBadRequest)
				return
			}
			params.ProductID = id
		}
		params.Limit, params.Offset = parseLimitOffset(r)

		batches, err := store.ListBatches(r.Context(), params)
		if err != nil {
			logger.Error("failed to list batches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]batchResponse, len(batches))
		for i, b := range batches {
			resp[i] = batchToResponse(b)
		}
		writeData(w, http.StatusOK, resp)
	})
}

// handleUpdateBatch returns a handler that updates a batch. Fields not
// present in the request keep their stored values.
// PUT /api/v1/batches/{id}
func handleUpdateBatch(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBatchID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req updateBatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Status != nil && !validBatchStatuses[*req.Status] {
			writeError(w, fmt.Sprintf("status %q is not valid", *req.Status), http.StatusBadRequest)
			return
		}

		current, err := store.GetBatch(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get batch", "batch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		params := db.UpdateBatchParams{
			ManufacturingFacility:     current.ManufacturingFacility,
			ProductionLine:            current.ProductionLine,
			EndDate:                   current.EndDate,
			PlannedQuantity:           current.PlannedQuantity,
			ProducedQuantity:          current.ProducedQuantity,
			Status:                    current.Status,
			NFTCollectionAddress:      current.NFTCollectionAddress,
			NFTCollectionExplorerLink: current.NFTCollectionExplorerLink,
			Metadata:                  current.Metadata,
		}
		if req.ManufacturingFacility != nil {
			params.ManufacturingFacility = *req.ManufacturingFacility
		}
		if req.ProductionLine != nil {
			params.ProductionLine = *req.ProductionLine
		}
		if req.EndDate != nil {
			params.EndDate = req.EndDate
		}
		if req.PlannedQuantity != nil {
			if *req.PlannedQuantity < 1 {
				writeError(w, "plannedQuantity must be at least 1", http.StatusBadRequest)
				return
			}
			params.PlannedQuantity = *req.PlannedQuantity
		}
		if req.ProducedQuantity != nil {
			if *req.ProducedQuantity < 0 {
				writeError(w, "producedQuantity must not be negative", http.StatusBadRequest)
				return
			}
			params.ProducedQuantity = *req.ProducedQuantity
		}
		if req.Status != nil {
			params.Status = *req.Status
		}
		if req.NFTCollectionAddress != nil {
			params.NFTCollectionAddress = req.NFTCollectionAddress
		}
		if req.NFTCollectionExplorerLink != nil {
			params.NFTCollectionExplorerLink = req.NFTCollectionExplorerLink
		}
		if req.Metadata != nil {
			params.Metadata = req.Metadata
		}

		batch, err := store.UpdateBatch(r.Context(), id, params)
		if err != nil {
			logger.Error("failed to update batch", "batch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("batch updated", "batch_id", id)
		writeMessage(w, http.StatusOK, "batch updated", batchToResponse(batch))
	})
}

// handleDeleteBatch returns a handler that removes a batch.
// DELETE /api/v1/batches/{id}
func handleDeleteBatch(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBatchID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteBatch(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			if db.IsForeignKeyViolation(err) {
				writeError(w, "batch has items and cannot be deleted", http.StatusConflict)
				return
			}
			logger.Error("failed to delete batch", "batch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("batch deleted", "batch_id", id)
		writeMessage(w, http.StatusOK, "batch deleted", nil)
	})
}

type batchStatsResponse struct {
	PlannedQuantity  int32            `json:"plannedQuantity"`
	ProducedQuantity int32            `json:"producedQuantity"`
	ItemCount        int64            `json:"itemCount"`
	ItemsByStatus    map[string]int64 `json:"itemsByStatus"`
	ItemsByQuality   map[string]int64 `json:"itemsByQuality"`
}

// handleGetBatchStats returns a handler that aggregates item counters for
// a batch.
// GET /api/v1/batches/{id}/stats
func handleGetBatchStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseBatchID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := store.GetBatchStats(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get batch stats", "batch_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeData(w, http.StatusOK, batchStatsResponse{
			PlannedQuantity:  stats.PlannedQuantity,
			ProducedQuantity: stats.ProducedQuantity,
			ItemCount:        stats.ItemCount,
			ItemsByStatus:    stats.ItemsByStatus,
			ItemsByQuality:   stats.ItemsByQuality,
		})
	})
}
