package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tracelot/tracelot/service/db"
)

type createProductRequest struct {
	GTIN           string          `json:"gtin"`
	ProductName    string          `json:"productName"`
	Company        string          `json:"company"`
	Category       string          `json:"category"`
	Description    *string         `json:"description"`
	Model          *string         `json:"model"`
	Specifications json.RawMessage `json:"specifications"`
	WarrantyMonths *int32          `json:"warrantyMonths"`
	ImageURL       *string         `json:"imageUrl"`
	NFTMintAddress *string         `json:"nftMintAddress"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (req *createProductRequest) validate() []string {
	var errs []string
	if err := validateGTIN(req.GTIN); err != nil {
		errs = append(errs, err.Error())
	}
	if req.ProductName == "" {
		errs = append(errs, "productName is required")
	}
	if req.Company == "" {
		errs = append(errs, "company is required")
	}
	if req.Category == "" {
		errs = append(errs, "category is required")
	}
	if req.WarrantyMonths != nil && *req.WarrantyMonths < 0 {
		errs = append(errs, "warrantyMonths must not be negative")
	}
	return errs
}

// updateProductRequest carries the mutable product fields. Absent fields
// keep their current value.
type updateProductRequest struct {
	ProductName    *string         `json:"productName"`
	Company        *string         `json:"company"`
	Category       *string         `json:"category"`
	Description    *string         `json:"description"`
	Model          *string         `json:"model"`
	Specifications json.RawMessage `json:"specifications"`
	WarrantyMonths *int32          `json:"warrantyMonths"`
	ImageURL       *string         `json:"imageUrl"`
	NFTMintAddress *string         `json:"nftMintAddress"`
	Metadata       json.RawMessage `json:"metadata"`
}

type productResponse struct {
	ID             int64           `json:"id"`
	GTIN           string          `json:"gtin"`
	ProductName    string          `json:"productName"`
	Company        string          `json:"company"`
	Category       string          `json:"category"`
	Description    *string         `json:"description,omitempty"`
	Model          *string         `json:"model,omitempty"`
	Specifications json.RawMessage `json:"specifications,omitempty"`
	WarrantyMonths *int32          `json:"warrantyMonths,omitempty"`
	ImageURL       *string         `json:"imageUrl,omitempty"`
	NFTMintAddress *string         `json:"nftMintAddress,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IsActive       bool            `json:"isActive"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func productToResponse(p *db.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		GTIN:           p.GTIN,
		ProductName:    p.ProductName,
		Company:        p.Company,
		Category:       p.Category,
		Description:    p.Description,
		Model:          p.Model,
		Specifications: p.Specifications,
		WarrantyMonths: p.WarrantyMonths,
		ImageURL:       p.ImageURL,
		NFTMintAddress: p.NFTMintAddress,
		Metadata:       p.Metadata,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// handleCreateProduct returns a handler that registers a product definition.
// POST /api/v1/products
func handleCreateProduct(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createProductRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			writeErrors(w, errs, http.StatusBadRequest)
			return
		}

		product, err := store.CreateProduct(r.Context(), db.CreateProductParams{
			GTIN:           req.GTIN,
			ProductName:    req.ProductName,
			Company:        req.Company,
			Category:       req.Category,
			Description:    req.Description,
			Model:          req.Model,
			Specifications: req.Specifications,
			WarrantyMonths: req.WarrantyMonths,
			ImageURL:       req.ImageURL,
			NFTMintAddress: req.NFTMintAddress,
			Metadata:       req.Metadata,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				writeError(w, "product with this GTIN already exists", http.StatusConflict)
				return
			}
			logger.Error("failed to create product", "gtin", req.GTIN, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("product created", "gtin", product.GTIN, "name", product.ProductName)
		writeMessage(w, http.StatusCreated, "product created", productToResponse(product))
	})
}

// handleGetProduct returns a handler that retrieves a product by GTIN.
// GET /api/v1/products/{gtin}
func handleGetProduct(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gtin := r.PathValue("gtin")

		product, err := store.GetProductByGTIN(r.Context(), gtin)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeData(w, http.StatusOK, productToResponse(product))
	})
}

// handleListProducts returns a handler that lists products with filters.
// GET /api/v1/products?company=&category=&isActive=&limit=&offset=
func handleListProducts(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListProductsParams{
			Company:  r.URL.Query().Get("company"),
			Category: r.URL.Query().Get("category"),
		}
		if raw := r.URL.Query().Get("isActive"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, "isActive must be a boolean", http.StatusBadRequest)
				return
			}
			params.IsActive = &active
		}
		params.Limit, params.Offset = parseLimitOffset(r)

		products, err := store.ListProducts(r.Context(), params)
		if err != nil {
			logger.Error("failed to list products", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]productResponse, len(products))
		for i, p := range products {
			resp[i] = productToResponse(p)
		}
		writeData(w, http.StatusOK, resp)
	})
}

// handleUpdateProduct returns a handler that updates a product. Fields not
// present in the request keep their stored values.
// PUT /api/v1/products/{gtin}
func handleUpdateProduct(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gtin := r.PathValue("gtin")

		var req updateProductRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		current, err := store.GetProductByGTIN(r.Context(), gtin)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		params := db.UpdateProductParams{
			ProductName:    current.ProductName,
			Company:        current.Company,
			Category:       current.Category,
			Description:    current.Description,
			Model:          current.Model,
			Specifications: current.Specifications,
			WarrantyMonths: current.WarrantyMonths,
			ImageURL:       current.ImageURL,
			NFTMintAddress: current.NFTMintAddress,
			Metadata:       current.Metadata,
		}
		if req.ProductName != nil {
			params.ProductName = *req.ProductName
		}
		if req.Company != nil {
			params.Company = *req.Company
		}
		if req.Category != nil {
			params.Category = *req.Category
		}
		if req.Description != nil {
			params.Description = req.Description
		}
		if req.Model != nil {
			params.Model = req.Model
		}
		if req.Specifications != nil {
			params.Specifications = req.Specifications
		}
		if req.WarrantyMonths != nil {
			params.WarrantyMonths = req.WarrantyMonths
		}
		if req.ImageURL != nil {
			params.ImageURL = req.ImageURL
		}
		if req.NFTMintAddress != nil {
			params.NFTMintAddress = req.NFTMintAddress
		}
		if req.Metadata != nil {
			params.Metadata = req.Metadata
		}
		if params.ProductName == "" || params.Company == "" || params.Category == "" {
			writeError(w, "productName, company, and category must not be empty", http.StatusBadRequest)
			return
		}

		product, err := store.UpdateProduct(r.Context(), gtin, params)
		if err != nil {
			logger.Error("failed to update product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("product updated", "gtin", gtin)
		writeMessage(w, http.StatusOK, "product updated", productToResponse(product))
	})
}

// handleDeactivateProduct returns a handler that marks a product inactive.
// PUT /api/v1/products/{gtin}/deactivate
func handleDeactivateProduct(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gtin := r.PathValue("gtin")

		product, err := store.SetProductActive(r.Context(), gtin, false)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to deactivate product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("product deactivated", "gtin", gtin)
		writeMessage(w, http.StatusOK, "product deactivated", productToResponse(product))
	})
}

// handleDeleteProduct returns a handler that removes a product.
// DELETE /api/v1/products/{gtin}
func handleDeleteProduct(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gtin := r.PathValue("gtin")

		if err := store.DeleteProduct(r.Context(), gtin); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			if db.IsForeignKeyViolation(err) {
				writeError(w, "product has batches and cannot be deleted", http.StatusConflict)
				return
			}
			logger.Error("failed to delete product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("product deleted", "gtin", gtin)
		writeMessage(w, http.StatusOK, "product deleted", nil)
	})
}

type productStatsResponse struct {
	BatchCount     int64            `json:"batchCount"`
	ItemCount      int64            `json:"itemCount"`
	PlannedTotal   int64            `json:"plannedTotal"`
	ProducedTotal  int64            `json:"producedTotal"`
	ItemsByQuality map[string]int64 `json:"itemsByQuality"`
}

// handleGetProductStats returns a handler that aggregates manufacturing
// counters for a product.
// GET /api/v1/products/{gtin}/stats
func handleGetProductStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gtin := r.PathValue("gtin")

		product, err := store.GetProductByGTIN(r.Context(), gtin)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "product not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get product", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		stats, err := store.GetProductStats(r.Context(), product.ID)
		if err != nil {
			logger.Error("failed to get product stats", "gtin", gtin, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeData(w, http.StatusOK, productStatsResponse{
			BatchCount:     stats.BatchCount,
			ItemCount:      stats.ItemCount,
			PlannedTotal:   stats.PlannedTotal,
			ProducedTotal:  stats.ProducedTotal,
			ItemsByQuality: stats.ItemsByQuality,
		})
	})
}
