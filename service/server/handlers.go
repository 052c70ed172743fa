package server

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode"
)

const defaultListLimit = 100

// validateGTIN checks the identifier is a plausible GTIN (8 to 14 digits).
func validateGTIN(gtin string) error {
	if gtin == "" {
		return fmt.Errorf("gtin is required")
	}
	if len(gtin) < 8 || len(gtin) > 14 {
		return fmt.Errorf("gtin must be 8 to 14 digits")
	}
	for _, r := range gtin {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("gtin must contain only digits")
		}
	}
	return nil
}

// parseLimitOffset reads limit/offset query parameters with a default cap.
func parseLimitOffset(r *http.Request) (int32, int32) {
	limit := int32(defaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	var offset int32
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n > 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
