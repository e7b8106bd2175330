package service

import "errors"

var (
	ErrEmailTaken           = errors.New("user with this email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrAlreadySubscribed    = errors.New("user already has an active subscription")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidLimit         = errors.New("request limit must be positive")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidRole          = errors.New("role must be user or admin")
)
