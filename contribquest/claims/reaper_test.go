package claims

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/contribquest/contribquest/contribquest/database/models"
)

type captureNotifier struct {
	mu       sync.Mutex
	expired  []int64
	expiring []int64
}

func (n *captureNotifier) NotifyClaimExpired(_ context.Context, issue *models.Issue, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, issue.ID)
	return nil
}

func (n *captureNotifier) NotifyClaimExpiring(_ context.Context, issue *models.Issue, _ int64, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiring = append(n.expiring, issue.ID)
	return nil
}

func newTestReaper(store *fakeStore) (*Reaper, *captureNotifier) {
	notifier := &captureNotifier{}
	r := NewReaper(store, store, NewDeadlinePolicy(testClaimsConfig()), time.Minute, 24*time.Hour)
	r.SetNotifier(notifier)
	return r, notifier
}

func claimedWithExpiry(store *fakeStore, userID int64, expiresAt time.Time) *models.Issue {
	claimedAt := expiresAt.Add(-7 * 24 * time.Hour)
	return store.addIssue(&models.Issue{
		Status:         models.IssueStatusClaimed,
		ClaimedBy:      &userID,
		ClaimedAt:      &claimedAt,
		ClaimExpiresAt: &expiresAt,
	})
}

// The grace period shields a claim for a full day past its deadline.
func TestReaper_Sweep_GraceBoundary(t *testing.T) {
	deadline := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		now          time.Time
		wantReleased bool
	}{
		{name: "one hour past deadline", now: deadline.Add(time.Hour), wantReleased: false},
		{name: "23 hours past deadline", now: deadline.Add(23 * time.Hour), wantReleased: false},
		{name: "exactly at grace boundary", now: deadline.Add(24 * time.Hour), wantReleased: true},
		{name: "25 hours past deadline", now: deadline.Add(25 * time.Hour), wantReleased: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			r, notifier := newTestReaper(store)
			r.now = func() time.Time { return tt.now }

			issue := claimedWithExpiry(store, 42, deadline)

			if err := r.Sweep(context.Background()); err != nil {
				t.Fatalf("Sweep() error = %v", err)
			}

			stored, _ := store.GetByID(context.Background(), issue.ID)
			released := stored.Status == models.IssueStatusAvailable
			if released != tt.wantReleased {
				t.Errorf("released = %v, want %v (status %s)", released, tt.wantReleased, stored.Status)
			}

			if tt.wantReleased {
				if len(notifier.expired) != 1 || notifier.expired[0] != issue.ID {
					t.Errorf("expired notifications = %v, want [%d]", notifier.expired, issue.ID)
				}
				actions := store.eventActions(issue.ID)
				if len(actions) != 1 || actions[0] != models.ClaimActionExpired {
					t.Errorf("events = %v, want [expired]", actions)
				}
			} else if len(notifier.expired) != 0 {
				t.Errorf("unexpected expiry notifications: %v", notifier.expired)
			}
		})
	}
}

func TestReaper_Sweep_Idempotent(t *testing.T) {
	store := newFakeStore()
	r, notifier := newTestReaper(store)

	deadline := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return deadline.Add(48 * time.Hour) }

	claimedWithExpiry(store, 42, deadline)

	for i := 0; i < 3; i++ {
		if err := r.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep() round %d error = %v", i, err)
		}
	}

	if len(notifier.expired) != 1 {
		t.Errorf("expired notifications = %d, want 1", len(notifier.expired))
	}
}

func TestReaper_Sweep_ReleasesOnlyLapsed(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReaper(store)

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	lapsed := claimedWithExpiry(store, 1, now.Add(-30*time.Hour))
	inGrace := claimedWithExpiry(store, 2, now.Add(-2*time.Hour))
	healthy := claimedWithExpiry(store, 3, now.Add(72*time.Hour))
	open := store.addIssue(&models.Issue{Status: models.IssueStatusAvailable})

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	wantStatus := map[int64]models.IssueStatus{
		lapsed.ID:  models.IssueStatusAvailable,
		inGrace.ID: models.IssueStatusClaimed,
		healthy.ID: models.IssueStatusClaimed,
		open.ID:    models.IssueStatusAvailable,
	}
	for id, want := range wantStatus {
		stored, _ := store.GetByID(context.Background(), id)
		if stored.Status != want {
			t.Errorf("issue %d status = %s, want %s", id, stored.Status, want)
		}
	}
}

// The loser of an extend-vs-reap race sees NotClaimed, never a silent
// deadline based on a released claim.
func TestReaper_ExtendAfterReap(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReaper(store)
	m := newTestManager(store)

	deadline := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	now := deadline.Add(48 * time.Hour)
	r.now = func() time.Time { return now }
	m.now = func() time.Time { return now }

	issue := claimedWithExpiry(store, 42, deadline)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	_, err := m.Extend(context.Background(), issue.ID, 42, 7, "almost done, final review pending")
	if !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("Extend() after reap error = %v, want %v", err, ErrNotClaimed)
	}
}

func TestReaper_Remind(t *testing.T) {
	store := newFakeStore()
	r, notifier := newTestReaper(store)

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	soon := claimedWithExpiry(store, 1, now.Add(6*time.Hour))
	distant := claimedWithExpiry(store, 2, now.Add(72*time.Hour))

	if err := r.remind(context.Background()); err != nil {
		t.Fatalf("remind() error = %v", err)
	}

	if len(notifier.expiring) != 1 || notifier.expiring[0] != soon.ID {
		t.Errorf("expiring notifications = %v, want [%d]", notifier.expiring, soon.ID)
	}
	for _, id := range notifier.expiring {
		if id == distant.ID {
			t.Errorf("distant claim %d got a reminder", distant.ID)
		}
	}
}

func TestReaper_StartAndShutdown(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestReaper(store)
	r.interval = 10 * time.Millisecond

	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Shutdown()
}
