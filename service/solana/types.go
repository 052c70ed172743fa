package solana

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrNoTokenAccount is returned when an owner has no associated token
// account for a mint, i.e. a zero balance that has never been initialized.
var ErrNoTokenAccount = errors.New("no token account for mint")

// MintInfo describes an on-chain token mint.
type MintInfo struct {
	Address  solana.PublicKey
	Supply   string // raw base units, decimal string
	Decimals uint8
}

// CreateFungibleTokenParams contains the parameters for minting a new
// fungible share token.
type CreateFungibleTokenParams struct {
	TotalShares uint64 // raw base units minted to the authority
	Decimals    uint8
	MetadataURI string // recorded on-chain in a memo instruction
}

// CreateFungibleTokenResult describes a freshly minted share token.
type CreateFungibleTokenResult struct {
	Mint         solana.PublicKey
	AuthorityATA solana.PublicKey
	Signature    solana.Signature
	RentLamports uint64
}

// TransferParams contains the parameters for a single share transfer.
type TransferParams struct {
	Mint      solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64 // raw base units
	Note      string // optional, recorded in a memo instruction
}

// SignatureStatus is the confirmation state of one persisted signature.
type SignatureStatus struct {
	Signature solana.Signature
	Found     bool
	Failed    bool
}
