package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
)

func seedFailures(t *testing.T, attempts *memAttemptRepo, subscriptionID string, count int, age time.Duration) {
	t.Helper()

	attemptedAt := time.Now().UTC().Add(-age)
	for i := 0; i < count; i++ {
		err := attempts.Create(context.Background(), &domain.DeliveryAttempt{
			ID:             "attempt",
			SubscriptionID: subscriptionID,
			EventType:      domain.EventOrderCreated,
			HTTPStatus:     500,
			Success:        false,
			AttemptedAt:    attemptedAt,
		})
		if err != nil {
			t.Fatalf("failed to seed attempt: %v", err)
		}
	}
}

func TestDisablePolicyBelowThreshold(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	deactivator := &recordingDeactivator{}
	policy, err := NewDisablePolicy(attempts, deactivator, 10, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	seedFailures(t, attempts, "sub-1", 9, time.Minute)
	policy.OnFailure(context.Background(), "sub-1")

	if deactivator.callCount() != 0 {
		t.Fatalf("Deactivate called %d times, want 0 below threshold", deactivator.callCount())
	}
}

func TestDisablePolicyAtThresholdDeactivates(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	deactivator := &recordingDeactivator{}
	policy, err := NewDisablePolicy(attempts, deactivator, 10, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	seedFailures(t, attempts, "sub-1", 10, time.Minute)
	policy.OnFailure(context.Background(), "sub-1")

	if deactivator.callCount() != 1 {
		t.Fatalf("Deactivate called %d times, want 1 at threshold", deactivator.callCount())
	}
}

func TestDisablePolicyIgnoresFailuresOutsideWindow(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	deactivator := &recordingDeactivator{}
	policy, err := NewDisablePolicy(attempts, deactivator, 10, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	seedFailures(t, attempts, "sub-1", 10, 25*time.Hour)
	policy.OnFailure(context.Background(), "sub-1")

	if deactivator.callCount() != 0 {
		t.Fatalf("Deactivate called %d times, want 0 for stale failures", deactivator.callCount())
	}
}

func TestDisablePolicyLedgerErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	attempts.countErr = errors.New("ledger unavailable")
	deactivator := &recordingDeactivator{}
	policy, err := NewDisablePolicy(attempts, deactivator, 10, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	// Must not panic or deactivate.
	policy.OnFailure(context.Background(), "sub-1")
	if deactivator.callCount() != 0 {
		t.Fatalf("Deactivate called %d times, want 0 on ledger error", deactivator.callCount())
	}
}

func TestDisablePolicyDeactivateErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	deactivator := &recordingDeactivator{err: errors.New("store unavailable")}
	policy, err := NewDisablePolicy(attempts, deactivator, 10, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	seedFailures(t, attempts, "sub-1", 10, time.Minute)
	policy.OnFailure(context.Background(), "sub-1")
}

func TestDisablePolicyDefaults(t *testing.T) {
	t.Parallel()

	attempts := newMemAttemptRepo()
	deactivator := &recordingDeactivator{}
	policy, err := NewDisablePolicy(attempts, deactivator, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewDisablePolicy() error = %v", err)
	}

	if policy.threshold != defaultDisableThreshold {
		t.Fatalf("threshold = %d, want %d", policy.threshold, defaultDisableThreshold)
	}
	if policy.window != defaultDisableWindow {
		t.Fatalf("window = %s, want %s", policy.window, defaultDisableWindow)
	}
}
