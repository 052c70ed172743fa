package nats

import (
	"time"

	"github.com/tracelot/tracelot/service/db"
)

// ShareTransferEvent represents a confirmed share transfer published to NATS.
// This is published to the subject "transfers.{share_token_mint}" in JetStream.
type ShareTransferEvent struct {
	// Transfer identifiers
	Signature      string `json:"signature"`
	ShareTokenMint string `json:"share_token_mint"`

	// Token information
	TokenName   string `json:"token_name"`
	TokenSymbol string `json:"token_symbol"`

	// Participants
	FromAddress string  `json:"from_address"`
	FromName    *string `json:"from_name,omitempty"`
	ToAddress   string  `json:"to_address"`
	ToName      *string `json:"to_name,omitempty"`
	ToID        *string `json:"to_id,omitempty"`

	// Transfer details
	Amount       string  `json:"amount"` // raw base units, decimal string
	ExplorerLink string  `json:"explorer_link"`
	Note         *string `json:"note,omitempty"`

	// Timing information
	TransferredAt time.Time `json:"transferred_at"`
	PublishedAt   time.Time `json:"published_at"`
}

// FromDBShareTransfer converts a persisted transfer to an event for publishing.
func FromDBShareTransfer(st *db.ShareTransfer) *ShareTransferEvent {
	return &ShareTransferEvent{
		Signature:      st.Signature,
		ShareTokenMint: st.ShareTokenMint,
		TokenName:      st.TokenName,
		TokenSymbol:    st.TokenSymbol,
		FromAddress:    st.FromAddress,
		FromName:       st.FromName,
		ToAddress:      st.ToAddress,
		ToName:         st.ToName,
		ToID:           st.ToID,
		Amount:         st.Amount,
		ExplorerLink:   st.ExplorerLink,
		Note:           st.Note,
		TransferredAt:  st.TransferredAt,
		PublishedAt:    time.Now().UTC(),
	}
}
