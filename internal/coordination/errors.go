package coordination

import (
	"errors"
	"fmt"
)

// ErrHubClosed is returned by NotificationHub.Subscribe after the hub
// has been disposed. Callers are expected to stop subscribing during
// shutdown; this surfaces the ones that did not.
var ErrHubClosed = errors.New("notification hub is closed")

// StoreError represents a communication failure with the shared store.
// Contention and ownership mismatches are ordinary boolean results, not
// StoreErrors.
type StoreError struct {
	Operation string // The store operation that failed (e.g., "acquire_lock")
	Key       string // The key or channel the operation targeted
	Err       error  // Underlying client error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s on %s: %v", e.Operation, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// SubscriptionError represents a failure to establish a notification
// subscription. The acquired connection has already been returned to
// the hub when this error is reported.
type SubscriptionError struct {
	Channel string // The notification channel that could not be subscribed
	Err     error  // Underlying error, if any
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
