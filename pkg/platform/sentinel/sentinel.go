package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
// - ErrNotFound: the referenced row does not exist
// - ErrAlreadyUsed: a row that may exist at most once per user already exists
// - ErrUnavailable: the backing store or cache cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
