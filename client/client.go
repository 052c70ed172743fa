package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the HTTP client for the tracelot traceability service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new traceability service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// apiEnvelope is the uniform response shape the server wraps every payload in.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

// do sends a request and decodes the envelope's data field into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 || !env.Success {
		if env.Error != "" {
			return fmt.Errorf("request failed: %s", env.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Product is a master product definition, keyed by GTIN.
type Product struct {
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

// CreateProductRequest contains the fields for registering a product.
type CreateProductRequest struct {
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
}

// CreateProduct registers a new product.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodPost, "/api/v1/products", req, &p); err != nil {
		return nil, err
	}
	c.logger.Debug("product created", "gtin", p.GTIN)
	return &p, nil
}

// GetProduct retrieves a product by GTIN.
func (c *Client) GetProduct(ctx context.Context, gtin string) (*Product, error) {
	var p Product
	path := "/api/v1/products/" + url.PathEscape(gtin)
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts retrieves products, optionally filtered by company and category.
func (c *Client) ListProducts(ctx context.Context, company, category string) ([]*Product, error) {
	q := url.Values{}
	if company != "" {
		q.Set("company", company)
	}
	if category != "" {
		q.Set("category", category)
	}
	path := "/api/v1/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var products []*Product
	if err := c.do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// DeleteProduct removes a product. Fails if batches still reference it.
func (c *Client) DeleteProduct(ctx context.Context, gtin string) error {
	path := "/api/v1/products/" + url.PathEscape(gtin)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Batch is a manufacturing run of one product.
type Batch struct {
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

// CreateBatchRequest contains the fields for opening a manufacturing batch.
type CreateBatchRequest struct {
	BatchName             string          `json:"batchName"`
	ProductGTIN           string          `json:"productGtin"`
	ManufacturingFacility string          `json:"manufacturingFacility"`
	ProductionLine        string          `json:"productionLine"`
	StartDate             time.Time       `json:"startDate"`
	PlannedQuantity       int32           `json:"plannedQuantity"`
	Status                string          `json:"status,omitempty"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
}

// CreateBatch opens a new manufacturing batch for a product.
func (c *Client) CreateBatch(ctx context.Context, req CreateBatchRequest) (*Batch, error) {
	var b Batch
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches", req, &b); err != nil {
		return nil, err
	}
	c.logger.Debug("batch created", "batch_id", b.ID, "batch_name", b.BatchName)
	return &b, nil
}

// GetBatch retrieves a batch by id.
func (c *Client) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	var b Batch
	path := "/api/v1/batches/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Item is a single manufactured unit, keyed by serial number.
type Item struct {
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

// CreateItemRequest contains the fields for recording a manufactured item.
type CreateItemRequest struct {
	SerialNumber          string          `json:"serialNumber"`
	BatchID               int64           `json:"batchId"`
	ManufacturingDate     time.Time       `json:"manufacturingDate"`
	ManufacturingOperator string          `json:"manufacturingOperator"`
	QualityStatus         string          `json:"qualityStatus,omitempty"`
	NFTMintAddress        *string         `json:"nftMintAddress,omitempty"`
	CurrentOwner          *string         `json:"currentOwner,omitempty"`
	AdditionalAttributes  json.RawMessage `json:"additionalAttributes,omitempty"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
}

// CreateItem records a manufactured item.
func (c *Client) CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error) {
	var i Item
	if err := c.do(ctx, http.MethodPost, "/api/v1/items", req, &i); err != nil {
		return nil, err
	}
	c.logger.Debug("item created", "serial_number", i.SerialNumber)
	return &i, nil
}

// GetItem retrieves an item by serial number.
func (c *Client) GetItem(ctx context.Context, serialNumber string) (*Item, error) {
	var i Item
	path := "/api/v1/items/" + url.PathEscape(serialNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// VerifyItemResult reports whether an item's mirrored mint exists on chain.
type VerifyItemResult struct {
	SerialNumber   string  `json:"serialNumber"`
	Verified       bool    `json:"verified"`
	NFTMintAddress *string `json:"nftMintAddress,omitempty"`
	ExplorerLink   *string `json:"explorerLink,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// VerifyItem checks the item's mirrored mint address against the chain.
func (c *Client) VerifyItem(ctx context.Context, serialNumber string) (*VerifyItemResult, error) {
	var v VerifyItemResult
	path := "/api/v1/items/" + url.PathEscape(serialNumber) + "/verify"
	if err := c.do(ctx, http.MethodGet, path, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateItemQuality records a quality inspection for an item.
func (c *Client) UpdateItemQuality(ctx context.Context, serialNumber, qualityStatus, inspector string, notes *string) (*Item, error) {
	req := map[string]any{
		"qualityStatus":    qualityStatus,
		"qualityInspector": inspector,
	}
	if notes != nil {
		req["qualityNotes"] = *notes
	}

	var i Item
	path := "/api/v1/items/" + url.PathEscape(serialNumber) + "/quality"
	if err := c.do(ctx, http.MethodPut, path, req, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// FractionalToken is a fungible share token minted against an NFT.
type FractionalToken struct {
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

// FractionalizeRequest contains the fields for fractionalizing an NFT.
type FractionalizeRequest struct {
	NFTMintAddress string `json:"nftMintAddress"`
	TotalShares    int64  `json:"totalShares"`
	TokenName      string `json:"tokenName"`
	TokenSymbol    string `json:"tokenSymbol"`
	Description    string `json:"description,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	CreatorName    string `json:"creatorName"`
	CreatorID      string `json:"creatorId,omitempty"`
	ShareDecimals  int32  `json:"shareDecimals,omitempty"`
}

// FractionalizeResult describes a completed fractionalization.
type FractionalizeResult struct {
	Token        FractionalToken `json:"token"`
	Signature    string          `json:"signature"`
	ExplorerLink string          `json:"explorerLink"`
	TxLink       string          `json:"txLink"`
}

// Fractionalize mints a fungible share token against an existing NFT.
func (c *Client) Fractionalize(ctx context.Context, req FractionalizeRequest) (*FractionalizeResult, error) {
	var result FractionalizeResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/fractionalize", req, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("NFT fractionalized",
		"nft_mint", req.NFTMintAddress,
		"share_token_mint", result.Token.ShareTokenMint,
	)
	return &result, nil
}

// DistributeRecipient is one target wallet in a distribution.
type DistributeRecipient struct {
	WalletAddress string `json:"walletAddress"`
	Amount        int64  `json:"amount"`
	Name          string `json:"name,omitempty"`
	ID            string `json:"id,omitempty"`
	Note          string `json:"note,omitempty"`
}

// DistributeRequest contains the fields for distributing shares.
type DistributeRequest struct {
	ShareTokenMint string                `json:"shareTokenMint"`
	Recipients     []DistributeRecipient `json:"recipients"`
}

// DistributionEntry is the per-recipient outcome of a distribution.
type DistributionEntry struct {
	WalletAddress string `json:"walletAddress"`
	Amount        int64  `json:"amount"`
	Success       bool   `json:"success"`
	Signature     string `json:"signature,omitempty"`
	ExplorerLink  string `json:"explorerLink,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SenderBalance is the authority's share balance around a distribution.
type SenderBalance struct {
	Before uint64 `json:"before"`
	After  uint64 `json:"after"`
}

// DistributeResult summarizes a distribution.
type DistributeResult struct {
	ShareTokenMint   string              `json:"shareTokenMint"`
	FromAddress      string              `json:"fromAddress"`
	FromName         string              `json:"fromName"`
	TotalRequested   int64               `json:"totalRequested"`
	TotalDistributed int64               `json:"totalDistributed"`
	SuccessCount     int                 `json:"successCount"`
	SenderBalance    SenderBalance       `json:"senderBalance"`
	TransferredAt    time.Time           `json:"transferredAt"`
	Entries          []DistributionEntry `json:"entries"`
	ExplorerLinks    []string            `json:"explorerLinks"`
}

// Distribute transfers shares of a fractionalized NFT to recipient wallets.
// Partial failure still returns a result; callers read per-entry outcomes.
func (c *Client) Distribute(ctx context.Context, req DistributeRequest) (*DistributeResult, error) {
	var result DistributeResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/fractionalize/distribute", req, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("shares distributed",
		"share_token_mint", req.ShareTokenMint,
		"total_distributed", result.TotalDistributed,
	)
	return &result, nil
}

// TokenInfo combines the persisted token record with live chain state.
type TokenInfo struct {
	Token            FractionalToken `json:"token"`
	OnChainSupply    string          `json:"onChainSupply"`
	AuthorityBalance string          `json:"authorityBalance"`
}

// GetShareToken retrieves a share token record with live chain state.
func (c *Client) GetShareToken(ctx context.Context, shareTokenMint string) (*TokenInfo, error) {
	var info TokenInfo
	path := "/api/v1/fractionalize/token/" + url.PathEscape(shareTokenMint)
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListShareTokens retrieves share token records.
func (c *Client) ListShareTokens(ctx context.Context, creatorAddress string) ([]*FractionalToken, error) {
	path := "/api/v1/fractionalize/tokens"
	if creatorAddress != "" {
		path += "?creatorAddress=" + url.QueryEscape(creatorAddress)
	}

	var tokens []*FractionalToken
	if err := c.do(ctx, http.MethodGet, path, nil, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// ShareTransfer is a persisted record of one confirmed transfer.
type ShareTransfer struct {
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

// ListShareTransfers retrieves persisted transfers, optionally filtered by mint.
func (c *Client) ListShareTransfers(ctx context.Context, shareTokenMint string) ([]*ShareTransfer, error) {
	path := "/api/v1/fractionalize/transfers"
	if shareTokenMint != "" {
		path += "?shareTokenMint=" + url.QueryEscape(shareTokenMint)
	}

	var transfers []*ShareTransfer
	if err := c.do(ctx, http.MethodGet, path, nil, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}
