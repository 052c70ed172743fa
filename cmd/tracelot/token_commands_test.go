package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecipients(t *testing.T) {
	recipients, err := parseRecipients([]string{
		"WalletA11111111111111111111111111111111111111:300",
		"WalletB11111111111111111111111111111111111111:200",
	})
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "WalletA11111111111111111111111111111111111111", recipients[0].WalletAddress)
	assert.Equal(t, int64(300), recipients[0].Amount)
	assert.Equal(t, int64(200), recipients[1].Amount)
}

func TestParseRecipients_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "missing amount", entry: "WalletA"},
		{name: "empty address", entry: ":100"},
		{name: "non-numeric amount", entry: "WalletA:lots"},
		{name: "zero amount", entry: "WalletA:0"},
		{name: "negative amount", entry: "WalletA:-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecipients([]string{tt.entry})
			assert.Error(t, err)
		})
	}
}
