package quota

import (
	"errors"

	"github.com/aman-churiwal/quota-gateway/internal/repository"
)

var (
	ErrSubscriptionNotFound = repository.ErrSubscriptionNotFound

	// A committed count above the limit. Should never happen while the
	// subscription row is locked for the read-modify-write.
	ErrQuotaRaceDetected = errors.New("quota count exceeded limit after commit")
)
