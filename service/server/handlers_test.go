package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doJSONWithPath sends a JSON body on a request that already carries path
// values set via SetPathValue.
func doJSONWithPath(t *testing.T, h http.Handler, req *http.Request, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req.Body = io.NopCloser(&buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return rec, env
}

func TestValidateGTIN(t *testing.T) {
	tests := []struct {
		name    string
		gtin    string
		wantErr bool
	}{
		{name: "valid GTIN-13", gtin: "4006381333931", wantErr: false},
		{name: "valid GTIN-8", gtin: "96385074", wantErr: false},
		{name: "valid GTIN-14", gtin: "00012345678905", wantErr: false},
		{name: "empty", gtin: "", wantErr: true},
		{name: "too short", gtin: "1234567", wantErr: true},
		{name: "too long", gtin: "123456789012345", wantErr: true},
		{name: "letters", gtin: "40063813339AB", wantErr: true},
		{name: "whitespace", gtin: "4006381 33393", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGTIN(tt.gtin)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int32
		wantOffset int32
	}{
		{name: "defaults", query: "", wantLimit: defaultListLimit, wantOffset: 0},
		{name: "explicit", query: "?limit=25&offset=50", wantLimit: 25, wantOffset: 50},
		{name: "garbage falls back", query: "?limit=abc&offset=-5", wantLimit: defaultListLimit, wantOffset: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products"+tt.query, nil)
			limit, offset := parseLimitOffset(req)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

// Validation failures short-circuit before any database call, so a nil
// store is safe here.

func TestHandleCreateProduct_InvalidGTIN(t *testing.T) {
	h := handleCreateProduct(nil, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/products", map[string]any{
		"gtin":        "not-a-gtin",
		"productName": "Widget",
		"company":     "Acme Corp",
		"category":    "widgets",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleCreateProduct_MissingFields(t *testing.T) {
	h := handleCreateProduct(nil, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/products", map[string]any{
		"gtin": "4006381333931",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Errors)
}

func TestHandleCreateItem_MissingFields(t *testing.T) {
	h := handleCreateItem(nil, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/items", map[string]any{
		"serialNumber": "SN-001",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Errors)
}

func TestHandleCreateItem_InvalidQualityStatus(t *testing.T) {
	h := handleCreateItem(nil, testLogger())

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/items", map[string]any{
		"serialNumber":          "SN-001",
		"batchId":               1,
		"manufacturingDate":     "2026-08-01T00:00:00Z",
		"manufacturingOperator": "operator-7",
		"qualityStatus":         "SPOTLESS",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleUpdateItemQuality_InvalidStatus(t *testing.T) {
	h := handleUpdateItemQuality(nil, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/items/SN-001/quality", nil)
	req.SetPathValue("serialNumber", "SN-001")
	rec, env := doJSONWithPath(t, h, req, map[string]any{
		"qualityStatus":    "SPOTLESS",
		"qualityInspector": "inspector-3",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestHandleUpdateItemQuality_MissingInspector(t *testing.T) {
	h := handleUpdateItemQuality(nil, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/items/SN-001/quality", nil)
	req.SetPathValue("serialNumber", "SN-001")
	rec, env := doJSONWithPath(t, h, req, map[string]any{
		"qualityStatus": "PASSED",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Errors, "qualityInspector is required")
}
