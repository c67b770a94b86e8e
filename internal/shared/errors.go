package shared

import "errors"

// ErrIdempotencyStoreMissing is returned when a key is supplied but no store is wired.
var ErrIdempotencyStoreMissing = errors.New("idempotency store not initialised")
