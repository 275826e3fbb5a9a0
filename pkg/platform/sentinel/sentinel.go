package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and the ledger service translates them into coded domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrAlreadyUsed: a unique key (company name, idempotency key) is taken
//   - ErrInsufficient: a balance check inside a transaction failed
//   - ErrUnavailable: lock contention or serialization failure; safe to retry
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInsufficient = errors.New("insufficient balance")
	ErrUnavailable  = errors.New("unavailable")
)
