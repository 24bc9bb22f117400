package domain

import "errors"

var (
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrUnresolvableUser    = errors.New("unresolvable_user")
	ErrConcurrentUpdate    = errors.New("concurrent_update")
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrStoreUnavailable    = errors.New("store_unavailable")
	// ErrSubscriptionPending is returned for a lifecycle event that
	// arrives before the checkout creating its record.
	ErrSubscriptionPending = errors.New("subscription_pending")
)
