package repository

import "errors"

var ErrSubscriptionNotFound = errors.New("subscription not found")
