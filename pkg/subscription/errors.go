package subscription

import "errors"

// Subscription errors.
var (
	ErrNotInitialized         = errors.New("subscription manager not initialized")
	ErrNoMatchingSubscription = errors.New("no matching subscription")
	ErrSubscriptionTimeout    = errors.New("subscription timed out")
	ErrTransport              = errors.New("relay transport error")
	ErrRestoreConflict        = errors.New("restore conflict: active subscriptions already present")
	ErrInvalidTopic           = errors.New("invalid topic")
)
