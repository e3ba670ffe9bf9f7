package claims

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
)

const (
	sweepTimeout     = 30 * time.Second
	sweepBatchSize   = 200
	sweepConcurrency = 4
)

// Notifier receives reaper events. Implementations must be safe for
// concurrent use; failures are logged and never block the sweep.
type Notifier interface {
	NotifyClaimExpired(ctx context.Context, issue *models.Issue, userID int64) error
	NotifyClaimExpiring(ctx context.Context, issue *models.Issue, userID int64, expiresAt time.Time) error
}

// logNotifier is the default Notifier: it just logs.
type logNotifier struct{}

func (logNotifier) NotifyClaimExpired(_ context.Context, issue *models.Issue, userID int64) error {
	slog.Info("Claim expired and released",
		slog.String("type", "claim"),
		slog.Int64("issue_id", issue.ID),
		slog.Int64("user_id", userID))
	return nil
}

func (logNotifier) NotifyClaimExpiring(_ context.Context, issue *models.Issue, userID int64, expiresAt time.Time) error {
	slog.Info("Claim approaching deadline",
		slog.String("type", "claim"),
		slog.Int64("issue_id", issue.ID),
		slog.Int64("user_id", userID),
		slog.Time("expires_at", expiresAt))
	return nil
}

// Reaper periodically releases claims whose deadline lapsed past the grace
// period and reminds owners whose deadline is approaching. Sweeps are
// idempotent: each release is a conditional update keyed on the lapsed
// deadline, so concurrent reapers on separate instances cannot double-fire.
type Reaper struct {
	issues   repositories.IssueRepository
	events   repositories.ClaimEventRepository
	policy   *DeadlinePolicy
	notifier Notifier

	interval          time.Duration
	reminderThreshold time.Duration

	ticker   *time.Ticker
	shutdown chan struct{}

	now func() time.Time
}

func NewReaper(issues repositories.IssueRepository, events repositories.ClaimEventRepository, policy *DeadlinePolicy, interval, reminderThreshold time.Duration) *Reaper {
	return &Reaper{
		issues:            issues,
		events:            events,
		policy:            policy,
		notifier:          logNotifier{},
		interval:          interval,
		reminderThreshold: reminderThreshold,
		shutdown:          make(chan struct{}),
		now:               time.Now,
	}
}

// SetNotifier replaces the default logging notifier. Call before Start.
func (r *Reaper) SetNotifier(n Notifier) {
	if n != nil {
		r.notifier = n
	}
}

// Start begins the background sweep loop.
func (r *Reaper) Start() {
	r.ticker = time.NewTicker(r.interval)
	go r.run()
	slog.Info("Claim reaper started",
		slog.String("type", "claim"),
		slog.Duration("interval", r.interval))
}

func (r *Reaper) run() {
	defer r.ticker.Stop()

	for {
		select {
		case <-r.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)

			if err := r.Sweep(ctx); err != nil {
				slog.Error("Claim expiry sweep failed",
					slog.String("type", "claim"),
					slog.Any("error", err))
			}

			if err := r.remind(ctx); err != nil {
				slog.Error("Claim reminder pass failed",
					slog.String("type", "claim"),
					slog.Any("error", err))
			}

			cancel()
		case <-r.shutdown:
			return
		}
	}
}

// Sweep releases every claim whose deadline lapsed past the grace period.
// It is safe to call concurrently with live claim traffic and with other
// reaper instances: an issue extended or released between the batch read
// and the release update is simply skipped.
func (r *Reaper) Sweep(ctx context.Context) error {
	lapsedBefore := r.policy.LapsedBefore(r.now())

	lapsed, err := r.issues.FindExpired(ctx, lapsedBefore, sweepBatchSize)
	if err != nil {
		return err
	}
	if len(lapsed) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(sweepConcurrency)

	for _, issue := range lapsed {
		issue := issue
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r.reapOne(gctx, issue, lapsedBefore)
			return nil
		})
	}

	return g.Wait()
}

func (r *Reaper) reapOne(ctx context.Context, issue *models.Issue, lapsedBefore time.Time) {
	releasedAt := r.now()

	won, err := r.issues.ReleaseExpired(ctx, issue.ID, lapsedBefore, releasedAt)
	if err != nil {
		slog.Error("Failed to release expired claim",
			slog.String("type", "claim"),
			slog.Int64("issue_id", issue.ID),
			slog.Any("error", err))
		return
	}
	if !won {
		// Extended, released, or reaped by another instance in the meantime.
		return
	}

	var ownerID int64
	if issue.ClaimedBy != nil {
		ownerID = *issue.ClaimedBy
	}

	if err := r.events.Record(ctx, issue.ID, ownerID, models.ClaimActionExpired, "released by expiry sweep", releasedAt); err != nil {
		slog.Warn("Failed to record claim expiry event",
			slog.String("type", "claim"),
			slog.Int64("issue_id", issue.ID),
			slog.Any("error", err))
	}

	if err := r.notifier.NotifyClaimExpired(ctx, issue, ownerID); err != nil {
		slog.Warn("Failed to send claim expiry notification",
			slog.String("type", "claim"),
			slog.Int64("issue_id", issue.ID),
			slog.Any("error", err))
	}
}

// remind notifies owners whose claim deadline falls inside the reminder
// threshold. Repeat reminders across sweeps are acceptable.
func (r *Reaper) remind(ctx context.Context) error {
	if r.reminderThreshold <= 0 {
		return nil
	}

	now := r.now()
	expiring, err := r.issues.FindExpiring(ctx, now, now.Add(r.reminderThreshold), sweepBatchSize)
	if err != nil {
		return err
	}

	for _, issue := range expiring {
		if issue.ClaimedBy == nil || issue.ClaimExpiresAt == nil {
			continue
		}
		if err := r.notifier.NotifyClaimExpiring(ctx, issue, *issue.ClaimedBy, *issue.ClaimExpiresAt); err != nil {
			slog.Warn("Failed to send claim reminder",
				slog.String("type", "claim"),
				slog.Int64("issue_id", issue.ID),
				slog.Any("error", err))
		}
	}

	return nil
}

// Shutdown stops the sweep loop.
func (r *Reaper) Shutdown() {
	close(r.shutdown)
	if r.ticker != nil {
		r.ticker.Stop()
	}
	slog.Info("Claim reaper shutdown completed", slog.String("type", "claim"))
}
