package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is the off-chain token metadata JSON referenced by a mint.
type Document struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Image       string      `json:"image,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute is one trait entry in a metadata document.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Uploader stores a metadata document and returns a public URI for it.
type Uploader interface {
	Upload(ctx context.Context, doc *Document) (string, error)
}

// HTTPUploader posts metadata documents to a JSON upload gateway.
// The gateway is expected to respond with {"uri": "..."}.
type HTTPUploader struct {
	uploadURL string
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPUploader creates an uploader targeting the given gateway URL.
func NewHTTPUploader(uploadURL string, logger *slog.Logger) *HTTPUploader {
	return &HTTPUploader{
		uploadURL: uploadURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// Upload posts the document and returns the URI the gateway assigned.
func (u *HTTPUploader) Upload(ctx context.Context, doc *Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("metadata upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.URI == "" {
		return "", fmt.Errorf("metadata upload returned empty uri")
	}

	u.logger.DebugContext(ctx, "uploaded metadata document",
		"name", doc.Name,
		"uri", out.URI,
	)
	return out.URI, nil
}

// MemoryUploader keeps documents in memory and hands out synthetic URIs.
// Used in tests and local development where no gateway is running.
type MemoryUploader struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewMemoryUploader creates an empty in-memory uploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{docs: make(map[string]*Document)}
}

// Upload stores the document under a random id.
func (u *MemoryUploader) Upload(_ context.Context, doc *Document) (string, error) {
	id := uuid.NewString()
	u.mu.Lock()
	u.docs[id] = doc
	u.mu.Unlock()
	return "memory://metadata/" + id + ".json", nil
}

// Get returns a stored document by the URI returned from Upload.
func (u *MemoryUploader) Get(uri string) (*Document, bool) {
	id := uri
	if len(id) > len("memory://metadata/")+len(".json") {
		id = id[len("memory://metadata/") : len(id)-len(".json")]
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	doc, ok := u.docs[id]
	return doc, ok
}
