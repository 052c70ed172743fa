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

var validQualityStatuses = map[string]bool{
	db.QualityStatusPending: true,
	db.QualityStatusPassed:  true,
	db.QualityStatusFailed:  true,
	db.QualityStatusRework:  true,
}

var validItemStatuses = map[string]bool{
	db.ItemStatusManufactured: true,
	db.ItemStatusInTransit:    true,
	db.ItemStatusDelivered:    true,
	db.ItemStatusReturned:     true,
	db.ItemStatusScrapped:     true,
}

type createItemRequest struct {
	SerialNumber          string          `json:"serialNumber"`
	BatchID               int64           `json:"batchId"`
	ManufacturingDate     time.Time       `json:"manufacturingDate"`
	ManufacturingOperator string          `json:"manufacturingOperator"`
	QualityStatus         string          `json:"qualityStatus"`
	NFTMintAddress        *string         `json:"nftMintAddress"`
	NFTExplorerLink       *string         `json:"nftExplorerLink"`
	NFTMetadataURI        *string         `json:"nftMetadataUri"`
	CurrentOwner          *string         `json:"currentOwner"`
	AdditionalAttributes  json.RawMessage `json:"additionalAttributes"`
	Metadata              json.RawMessage `json:"metadata"`
}

func (req *createItemRequest) validate() []string {
	var errs []string
	if req.SerialNumber == "" {
		errs = append(errs, "serialNumber is required")
	}
	if req.BatchID < 1 {
		errs = append(errs, "batchId is required")
	}
	if req.ManufacturingDate.IsZero() {
		errs = append(errs, "manufacturingDate is required")
	}
	if req.ManufacturingOperator == "" {
		errs = append(errs, "manufacturingOperator is required")
	}
	if req.QualityStatus != "" && !validQualityStatuses[req.QualityStatus] {
		errs = append(errs, fmt.Sprintf("qualityStatus %q is not valid", req.QualityStatus))
	}
	return errs
}

type updateItemRequest struct {
	ManufacturingOperator *string         `json:"manufacturingOperator"`
	NFTMintAddress        *string         `json:"nftMintAddress"`
	NFTExplorerLink       *string         `json:"nftExplorerLink"`
	NFTMetadataURI        *string         `json:"nftMetadataUri"`
	CurrentOwner          *string         `json:"currentOwner"`
	Status                *string         `json:"status"`
	AdditionalAttributes  json.RawMessage `json:"additionalAttributes"`
	Metadata              json.RawMessage `json:"metadata"`
}

type qualityUpdateRequest struct {
	QualityStatus    string  `json:"qualityStatus"`
	QualityInspector string  `json:"qualityInspector"`
	QualityNotes     *string `json:"qualityNotes"`
}

type itemResponse struct {
	ID                    int64           `json:"id"`
	SerialNumber          string          `json:"serialNumber"`
	BatchID               int64           `json:"batchId"`
	ManufacturingDate     time.Time       `json:"manufacturingDate"`
	ManufacturingOperator string          `json:"manufacturingOperator"`
	QualityStatus         string          `json:"qualityStatus"`
	QualityInspector      *string         `json:"qualityInspector,omitempty"`
	QualityInspectionDate *time.Time      `json:"qualityInspectionDate,omitempty"`
	QualityNotes          *string         `json:"qualityNotes,omitempty"`
	NFTMintAddress        *string         `json:"nftMintAddress,omitempty"`
	NFTExplorerLink       *string         `json:"nftExplorerLink,omitempty"`
	NFTMetadataURI        *string         `json:"nftMetadataUri,omitempty"`
	CurrentOwner          *string         `json:"currentOwner,omitempty"`
	Status                string          `json:"status"`
	AdditionalAttributes  json.RawMessage `json:"additionalAttributes,omitempty"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func itemToResponse(i *db.Item) itemResponse {
	return itemResponse{
		ID:                    i.ID,
		SerialNumber:          i.SerialNumber,
		BatchID:               i.BatchID,
		ManufacturingDate:     i.ManufacturingDate,
		ManufacturingOperator: i.ManufacturingOperator,
		QualityStatus:         i.QualityStatus,
		QualityInspector:      i.QualityInspector,
		QualityInspectionDate: i.QualityInspectionDate,
		QualityNotes:          i.QualityNotes,
		NFTMintAddress:        i.NFTMintAddress,
		NFTExplorerLink:       i.NFTExplorerLink,
		NFTMetadataURI:        i.NFTMetadataURI,
		CurrentOwner:          i.CurrentOwner,
		Status:                i.Status,
		AdditionalAttributes:  i.AdditionalAttributes,
		Metadata:              i.Metadata,
		CreatedAt:             i.CreatedAt,
		UpdatedAt:             i.UpdatedAt,
	}
}

// handleCreateItem returns a handler that records a manufactured item.
// Creating an item bumps its batch's produced counter.
// POST /api/v1/items
func handleCreateItem(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			writeErrors(w, errs, http.StatusBadRequest)
			return
		}

		if _, err := store.GetBatch(r.Context(), req.BatchID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "batch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get batch", "batch_id", req.BatchID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		item, err := store.CreateItem(r.Context(), db.CreateItemParams{
			SerialNumber:          req.SerialNumber,
			BatchID:               req.BatchID,
			ManufacturingDate:     req.ManufacturingDate,
			ManufacturingOperator: req.ManufacturingOperator,
			QualityStatus:         req.QualityStatus,
			NFTMintAddress:        req.NFTMintAddress,
			NFTExplorerLink:       req.NFTExplorerLink,
			NFTMetadataURI:        req.NFTMetadataURI,
			CurrentOwner:          req.CurrentOwner,
			AdditionalAttributes:  req.AdditionalAttributes,
			Metadata:              req.Metadata,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				writeError(w, "item with this serial number already exists", http.StatusConflict)
				return
			}
			logger.Error("failed to create item", "serial_number", req.SerialNumber, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if _, err := store.AdjustBatchProducedQuantity(r.Context(), req.BatchID, 1); err != nil {
			logger.Error("failed to bump produced quantity", "batch_id", req.BatchID, "error", err)
		}

		logger.Info("item created", "serial_number", item.SerialNumber, "batch_id", item.BatchID)
		writeMessage(w, http.StatusCreated, "item created", itemToResponse(item))
	})
}

// handleGetItem returns a handler that retrieves an item by serial number.
// GET /api/v1/items/{serialNumber}
func handleGetItem(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serialNumber")

		item, err := store.GetItemBySerial(r.Context(), serial)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeData(w, http.StatusOK, itemToResponse(item))
	})
}

// handleListItems returns a handler that lists items with filters.
// GET /api/v1/items?batchId=&qualityStatus=&status=&limit=&offset=
func handleListItems(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListItemsParams{
			QualityStatus: r.URL.Query().Get("qualityStatus"),
			Status:        r.URL.Query().Get("status"),
		}
		if raw := r.URL.Query().Get("batchId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, "batchId must be an integer", http.StatusBadRequest)
				return
			}
			params.BatchID = id
		}
		params.Limit, params.Offset = parseLimitOffset(r)

		items, err := store.ListItems(r.Context(), params)
		if err != nil {
			logger.Error("failed to list items", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]itemResponse, len(items))
		for i, item := range items {
			resp[i] = itemToResponse(item)
		}
		writeData(w, http.StatusOK, resp)
	})
}

// handleUpdateItem returns a handler that updates an item. Fields not
// present in the request keep their stored values.
// PUT /api/v1/items/{serialNumber}
func handleUpdateItem(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serialNumber")

		var req updateItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Status != nil && !validItemStatuses[*req.Status] {
			writeError(w, fmt.Sprintf("status %q is not valid", *req.Status), http.StatusBadRequest)
			return
		}

		current, err := store.GetItemBySerial(r.Context(), serial)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		params := db.UpdateItemParams{
			ManufacturingOperator: current.ManufacturingOperator,
			NFTMintAddress:        current.NFTMintAddress,
			NFTExplorerLink:       current.NFTExplorerLink,
			NFTMetadataURI:        current.NFTMetadataURI,
			CurrentOwner:          current.CurrentOwner,
			Status:                current.Status,
			AdditionalAttributes:  current.AdditionalAttributes,
			Metadata:              current.Metadata,
		}
		if req.ManufacturingOperator != nil {
			if *req.ManufacturingOperator == "" {
				writeError(w, "manufacturingOperator must not be empty", http.StatusBadRequest)
				return
			}
			params.ManufacturingOperator = *req.ManufacturingOperator
		}
		if req.NFTMintAddress != nil {
			params.NFTMintAddress = req.NFTMintAddress
		}
		if req.NFTExplorerLink != nil {
			params.NFTExplorerLink = req.NFTExplorerLink
		}
		if req.NFTMetadataURI != nil {
			params.NFTMetadataURI = req.NFTMetadataURI
		}
		if req.CurrentOwner != nil {
			params.CurrentOwner = req.CurrentOwner
		}
		if req.Status != nil {
			params.Status = *req.Status
		}
		if req.AdditionalAttributes != nil {
			params.AdditionalAttributes = req.AdditionalAttributes
		}
		if req.Metadata != nil {
			params.Metadata = req.Metadata
		}

		item, err := store.UpdateItem(r.Context(), serial, params)
		if err != nil {
			logger.Error("failed to update item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("item updated", "serial_number", serial)
		writeMessage(w, http.StatusOK, "item updated", itemToResponse(item))
	})
}

// handleUpdateItemQuality returns a handler that records a quality
// inspection result.
// PUT /api/v1/items/{serialNumber}/quality
func handleUpdateItemQuality(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serialNumber")

		var req qualityUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		var errs []string
		if !validQualityStatuses[req.QualityStatus] {
			errs = append(errs, fmt.Sprintf("qualityStatus %q is not valid", req.QualityStatus))
		}
		if req.QualityInspector == "" {
			errs = append(errs, "qualityInspector is required")
		}
		if len(errs) > 0 {
			writeErrors(w, errs, http.StatusBadRequest)
			return
		}

		item, err := store.RecordQualityInspection(r.Context(), serial, db.QualityInspectionParams{
			QualityStatus:    req.QualityStatus,
			QualityInspector: req.QualityInspector,
			QualityNotes:     req.QualityNotes,
			InspectedAt:      time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to record inspection", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("quality inspection recorded",
			"serial_number", serial,
			"quality_status", req.QualityStatus,
			"inspector", req.QualityInspector,
		)
		writeMessage(w, http.StatusOK, "quality inspection recorded", itemToResponse(item))
	})
}

type verifyItemResponse struct {
	SerialNumber   string  `json:"serialNumber"`
	Verified       bool    `json:"verified"`
	NFTMintAddress *string `json:"nftMintAddress,omitempty"`
	ExplorerLink   *string `json:"explorerLink,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// handleVerifyItem returns a handler that checks the item's mirrored mint
// address against the chain.
// GET /api/v1/items/{serialNumber}/verify
func handleVerifyItem(store *db.Store, verifier Verifier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serialNumber")

		item, err := store.GetItemBySerial(r.Context(), serial)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := verifyItemResponse{
			SerialNumber:   item.SerialNumber,
			NFTMintAddress: item.NFTMintAddress,
			ExplorerLink:   item.NFTExplorerLink,
		}
		if item.NFTMintAddress == nil {
			resp.Reason = "item has no NFT mint address"
			writeData(w, http.StatusOK, resp)
			return
		}
		if verifier == nil {
			writeError(w, "ledger verification is not available", http.StatusServiceUnavailable)
			return
		}

		exists, err := verifier.MintExistsByAddress(r.Context(), *item.NFTMintAddress)
		if err != nil {
			logger.Error("failed to verify mint on chain",
				"serial_number", serial,
				"mint", *item.NFTMintAddress,
				"error", err,
			)
			writeError(w, "failed to verify against the ledger", http.StatusBadGateway)
			return
		}

		resp.Verified = exists
		if !exists {
			resp.Reason = "mint address not found on chain"
		}
		writeData(w, http.StatusOK, resp)
	})
}

// handleDeleteItem returns a handler that removes an item and decrements
// its batch's produced counter.
// DELETE /api/v1/items/{serialNumber}
func handleDeleteItem(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serial := r.PathValue("serialNumber")

		item, err := store.GetItemBySerial(r.Context(), serial)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if err := store.DeleteItem(r.Context(), serial); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "item not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete item", "serial_number", serial, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if _, err := store.AdjustBatchProducedQuantity(r.Context(), item.BatchID, -1); err != nil {
			logger.Error("failed to decrement produced quantity", "batch_id", item.BatchID, "error", err)
		}

		logger.Info("item deleted", "serial_number", serial)
		writeMessage(w, http.StatusOK, "item deleted", nil)
	})
}
