package fractional

import "fmt"

// ValidationError indicates the request itself was malformed or violates a
// domain rule. Maps to a 400 at the HTTP boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError indicates the operation collides with existing state, such
// as fractionalizing an NFT that already has a share token. Maps to a 409.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

// InsufficientBalanceError indicates the sender does not hold enough share
// tokens to cover a distribution. Maps to a 400.
type InsufficientBalanceError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Available, e.Required)
}

// LedgerError wraps a failure talking to the chain.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// PersistenceError wraps a database failure after the chain state already
// changed. The caller should surface it but the on-chain operation stands.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
