package coordination

import (
	"errors"
	"fmt"
	"testing"
)

// TestStoreError_Error verifies error message formatting
func TestStoreError_Error(t *testing.T) {
	err := &StoreError{
		Operation: "acquire_lock",
		Key:       "segmentd:lock:42:video:1080p:0:3",
		Err:       errors.New("connection refused"),
	}

	expected := "store error during acquire_lock on segmentd:lock:42:video:1080p:0:3: connection refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestStoreError_Unwrap verifies error chain traversal
func TestStoreError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &StoreError{
		Operation: "extend_lock",
		Key:       "segmentd:lock:a",
		Err:       cause,
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Verify errors.Is works through the chain
	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is() should find cause in wrapped chain")
	}
}

// TestStoreError_As verifies programmatic error type detection
func TestStoreError_As(t *testing.T) {
	originalErr := &StoreError{
		Operation: "publish",
		Key:       "segmentd:complete:a",
		Err:       errors.New("broken pipe"),
	}

	wrapped := fmt.Errorf("context: %w", originalErr)

	var target *StoreError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As() should extract StoreError from wrapped chain")
	}

	if target.Operation != "publish" {
		t.Errorf("Operation = %q, want %q", target.Operation, "publish")
	}
	if target.Key != "segmentd:complete:a" {
		t.Errorf("Key = %q, want %q", target.Key, "segmentd:complete:a")
	}
}

// TestSubscriptionError_Error verifies error message formatting
func TestSubscriptionError_Error(t *testing.T) {
	err := &SubscriptionError{
		Channel: "segmentd:complete:42:video:1080p:0:3",
		Err:     errors.New("connection closed"),
	}

	expected := "failed to subscribe to segmentd:complete:42:video:1080p:0:3: connection closed"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestSubscriptionError_Unwrap verifies error chain traversal
func TestSubscriptionError_Unwrap(t *testing.T) {
	cause := ErrHubClosed
	err := &SubscriptionError{
		Channel: "segmentd:complete:a",
		Err:     cause,
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, ErrHubClosed) {
		t.Error("errors.Is() should find ErrHubClosed in wrapped chain")
	}
}

// TestErrorTypes_Nil verifies nil error handling
func TestErrorTypes_Nil(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "StoreError with nil Err",
			err:  &StoreError{Operation: "get_status", Key: "segmentd:status:a", Err: nil},
		},
		{
			name: "SubscriptionError with nil Err",
			err:  &SubscriptionError{Channel: "segmentd:complete:a", Err: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unwrapped := errors.Unwrap(tt.err); unwrapped != nil {
				t.Errorf("Unwrap() = %v, want nil", unwrapped)
			}

			if errMsg := tt.err.Error(); errMsg == "" {
				t.Error("Error() should return non-empty string even when Err is nil")
			}
		})
	}
}
