package service

import (
	"context"
	"errors"
	"testing"

	"github.com/commercekit/webhook-dispatch/internal/cache"
	"github.com/commercekit/webhook-dispatch/internal/domain"
)

func newTestSubscriptionService(t *testing.T) (*SubscriptionService, *memSubscriptionRepo, *cache.ActiveCache) {
	t.Helper()

	repo := newMemSubscriptionRepo()
	active := cache.NewActiveCache()
	svc, err := NewSubscriptionService(repo, active, nil)
	if err != nil {
		t.Fatalf("NewSubscriptionService() error = %v", err)
	}
	return svc, repo, active
}

func TestRegisterGeneratesSecret(t *testing.T) {
	t.Parallel()

	svc, repo, active := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "order hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created", "bogus.event"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	// 32 random bytes, hex-encoded.
	if len(sub.Secret) != 64 {
		t.Fatalf("generated secret length = %d, want 64 hex chars", len(sub.Secret))
	}
	if len(sub.Events) != 1 || sub.Events[0] != domain.EventOrderCreated {
		t.Fatalf("events = %v, want [order.created] after filtering", sub.Events)
	}
	if !sub.Active {
		t.Fatal("subscription should default to active")
	}

	if _, err := repo.GetByID(context.Background(), sub.ID); err != nil {
		t.Fatalf("subscription not persisted: %v", err)
	}
	if got := len(active.Lookup(domain.EventOrderCreated)); got != 1 {
		t.Fatalf("cache lookup = %d entries, want 1", got)
	}
}

func TestRegisterKeepsProvidedSecret(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestSubscriptionService(t)

	secret := "caller-supplied-secret"
	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "order hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
		Secret:  &secret,
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}
	if sub.Secret != secret {
		t.Fatalf("secret = %q, want caller-supplied value", sub.Secret)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{
			name: "non-http url",
			input: RegisterInput{
				OwnerID: "owner-1", Name: "x", URL: "ftp://x", Events: []string{"order.created"},
			},
		},
		{
			name: "only unknown events",
			input: RegisterInput{
				OwnerID: "owner-1", Name: "x", URL: "https://example.com/hook", Events: []string{"bogus.event"},
			},
		},
		{
			name: "empty event list",
			input: RegisterInput{
				OwnerID: "owner-1", Name: "x", URL: "https://example.com/hook",
			},
		},
		{
			name: "missing name",
			input: RegisterInput{
				OwnerID: "owner-1", URL: "https://example.com/hook", Events: []string{"order.created"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, repo, active := newTestSubscriptionService(t)

			_, err := svc.Register(context.Background(), tt.input)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Register() error = %v, want ErrValidation", err)
			}

			// No partial state.
			if subs, _ := repo.ListByOwner(context.Background(), "owner-1"); len(subs) != 0 {
				t.Fatalf("persisted rows = %d, want 0", len(subs))
			}
			if got := active.Len(); got != 0 {
				t.Fatalf("cached entries = %d, want 0", got)
			}
		})
	}
}

func TestRegisterInactiveIsNotCached(t *testing.T) {
	t.Parallel()

	svc, _, active := newTestSubscriptionService(t)

	inactive := false
	_, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "paused hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
		Active:  &inactive,
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}
	if got := active.Len(); got != 0 {
		t.Fatalf("cached entries = %d, want 0 for inactive subscription", got)
	}
}

func TestUpdateRefreshesCacheEventSet(t *testing.T) {
	t.Parallel()

	svc, _, active := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	events := []string{"product.deleted"}
	updated, err := svc.Update(context.Background(), sub.ID, "owner-1", UpdateInput{Events: &events})
	if err != nil {
		t.Fatalf("Update() unexpected error = %v", err)
	}
	if len(updated.Events) != 1 || updated.Events[0] != domain.EventProductDeleted {
		t.Fatalf("events = %v, want [product.deleted]", updated.Events)
	}

	if got := len(active.Lookup(domain.EventOrderCreated)); got != 0 {
		t.Fatalf("old event bucket entries = %d, want 0", got)
	}
	if got := len(active.Lookup(domain.EventProductDeleted)); got != 1 {
		t.Fatalf("new event bucket entries = %d, want 1", got)
	}
}

func TestUpdateValidatesPatch(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	badURL := "ftp://nope"
	if _, err := svc.Update(context.Background(), sub.ID, "owner-1", UpdateInput{URL: &badURL}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation for bad url", err)
	}

	noEvents := []string{"bogus.event"}
	if _, err := svc.Update(context.Background(), sub.ID, "owner-1", UpdateInput{Events: &noEvents}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation for empty filtered events", err)
	}

	emptySecret := "  "
	if _, err := svc.Update(context.Background(), sub.ID, "owner-1", UpdateInput{Secret: &emptySecret}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Update() error = %v, want ErrValidation for empty secret", err)
	}
}

func TestUpdateWrongOwner(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	name := "renamed"
	if _, err := svc.Update(context.Background(), sub.ID, "other-owner", UpdateInput{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound for wrong owner", err)
	}
}

func TestUpdateReactivationReinsertsIntoCache(t *testing.T) {
	t.Parallel()

	svc, _, active := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	if err := svc.Deactivate(context.Background(), sub.ID); err != nil {
		t.Fatalf("Deactivate() unexpected error = %v", err)
	}
	if got := active.Len(); got != 0 {
		t.Fatalf("cached entries = %d, want 0 after deactivate", got)
	}

	reactivate := true
	if _, err := svc.Update(context.Background(), sub.ID, "owner-1", UpdateInput{Active: &reactivate}); err != nil {
		t.Fatalf("Update() unexpected error = %v", err)
	}
	if got := len(active.Lookup(domain.EventOrderCreated)); got != 1 {
		t.Fatalf("cached entries = %d, want 1 after reactivation", got)
	}
}

func TestDeleteEvictsAndReports(t *testing.T) {
	t.Parallel()

	svc, _, active := newTestSubscriptionService(t)

	sub, err := svc.Register(context.Background(), RegisterInput{
		OwnerID: "owner-1",
		Name:    "hooks",
		URL:     "https://example.com/hook",
		Events:  []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("Register() unexpected error = %v", err)
	}

	deleted, err := svc.Delete(context.Background(), sub.ID, "owner-1")
	if err != nil {
		t.Fatalf("Delete() unexpected error = %v", err)
	}
	if !deleted {
		t.Fatal("Delete() = false, want true")
	}
	if got := active.Len(); got != 0 {
		t.Fatalf("cached entries = %d, want 0 after delete", got)
	}

	deleted, err = svc.Delete(context.Background(), sub.ID, "owner-1")
	if err != nil {
		t.Fatalf("Delete() unexpected error = %v", err)
	}
	if deleted {
		t.Fatal("second Delete() = true, want false")
	}
}

func TestDeactivateUnknownSubscription(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestSubscriptionService(t)

	if err := svc.Deactivate(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Deactivate() error = %v, want ErrNotFound", err)
	}
	if err := svc.Deactivate(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Deactivate() error = %v, want ErrValidation for blank id", err)
	}
}
