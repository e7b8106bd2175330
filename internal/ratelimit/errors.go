package ratelimit

import "errors"

// ErrStoreUnavailable is returned when the counter store cannot be reached.
// The limiter recovers from it by admitting the request.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")
