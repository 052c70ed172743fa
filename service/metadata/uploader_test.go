package metadata

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *Document {
	return &Document{
		Name:        "Widget Shares",
		Symbol:      "WSHARE",
		Description: "Fractional shares of NFT NFTmint1... - 1000 shares",
		Attributes: []Attribute{
			{TraitType: "Original NFT", Value: "NFTmint111"},
			{TraitType: "Total Shares", Value: "1000"},
		},
	}
}

func TestHTTPUploader(t *testing.T) {
	var received Document
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"uri": "https://cdn.example.com/meta/abc.json"})
	}))
	defer server.Close()

	uploader := NewHTTPUploader(server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	uri, err := uploader.Upload(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/meta/abc.json", uri)
	assert.Equal(t, "Widget Shares", received.Name)
	assert.Len(t, received.Attributes, 2)
}

func TestHTTPUploader_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	uploader := NewHTTPUploader(server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := uploader.Upload(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
}

func TestHTTPUploader_EmptyURI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	uploader := NewHTTPUploader(server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := uploader.Upload(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty uri")
}

func TestMemoryUploader(t *testing.T) {
	uploader := NewMemoryUploader()

	uri, err := uploader.Upload(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Contains(t, uri, "memory://metadata/")

	doc, ok := uploader.Get(uri)
	require.True(t, ok)
	assert.Equal(t, "WSHARE", doc.Symbol)
}
