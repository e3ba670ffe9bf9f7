package claims

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
	"github.com/contribquest/contribquest/contribquest/logger"
)

// Manager owns the issue claim lifecycle: claim, release, extend, query.
//
// Every state transition is delegated to the repository as one atomic
// conditional update; the manager re-reads only to classify a lost race into
// the right error kind, never to decide whether to mutate.
type Manager struct {
	issues repositories.IssueRepository
	events repositories.ClaimEventRepository
	policy *DeadlinePolicy

	now func() time.Time
}

func NewManager(issues repositories.IssueRepository, events repositories.ClaimEventRepository, policy *DeadlinePolicy) *Manager {
	return &Manager{
		issues: issues,
		events: events,
		policy: policy,
		now:    time.Now,
	}
}

// ClaimReceipt reports a successful claim.
type ClaimReceipt struct {
	IssueID   int64     `json:"issue_id"`
	UserID    int64     `json:"user_id"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `json:"claim_expires_at"`
}

// ExtensionReceipt reports a successful deadline extension.
type ExtensionReceipt struct {
	IssueID      int64     `json:"issue_id"`
	DaysAdded    int       `json:"days_added"`
	NewExpiresAt time.Time `json:"new_expires_at"`
}

// ClaimStatus is the externally visible claim state of an issue. A claim
// that has lapsed past its grace period is presented as available even
// before the expiry sweep reclaims the row.
type ClaimStatus struct {
	IssueID   int64              `json:"issue_id"`
	Status    models.IssueStatus `json:"status"`
	ClaimedBy *int64             `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time         `json:"claimed_at,omitempty"`
	ExpiresAt *time.Time         `json:"claim_expires_at,omitempty"`
}

// Claim acquires the lease on an available issue for the given user.
func (m *Manager) Claim(ctx context.Context, issueID, userID int64) (*ClaimReceipt, error) {
	start := m.now()

	receipt, err := m.claim(ctx, issueID, userID)
	logger.LogClaimOp("claim", issueID, userID, time.Since(start), err)
	return receipt, err
}

func (m *Manager) claim(ctx context.Context, issueID, userID int64) (*ClaimReceipt, error) {
	// Two attempts: if the conditional update loses but the follow-up read
	// still shows the issue available, the claim slot opened back up between
	// our read and write and one immediate retry is warranted.
	for attempt := 0; ; attempt++ {
		issue, err := m.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, m.translateStorageErr(err, issueID)
		}

		if issue.Status != models.IssueStatusAvailable {
			return nil, classifyClaimConflict(issue)
		}

		claimedAt := m.now()
		expiresAt := m.policy.Deadline(issue.DifficultyLevel, claimedAt)

		won, err := m.issues.Claim(ctx, issueID, userID, claimedAt, expiresAt)
		if err != nil {
			return nil, m.translateStorageErr(err, issueID)
		}

		if won {
			m.recordEvent(ctx, issueID, userID, models.ClaimActionClaimed,
				fmt.Sprintf("lease until %s", expiresAt.UTC().Format(time.RFC3339)), claimedAt)
			return &ClaimReceipt{
				IssueID:   issueID,
				UserID:    userID,
				ClaimedAt: claimedAt,
				ExpiresAt: expiresAt,
			}, nil
		}

		// Lost the race. Re-read once to report the right conflict.
		current, err := m.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, m.translateStorageErr(err, issueID)
		}
		if current.Status != models.IssueStatusAvailable {
			return nil, classifyClaimConflict(current)
		}
		if attempt > 0 {
			return nil, conflict(ErrAlreadyClaimed, current)
		}
	}
}

// Release gives up the lease held by the given user.
func (m *Manager) Release(ctx context.Context, issueID, userID int64) error {
	start := m.now()

	err := m.release(ctx, issueID, userID, false)
	logger.LogClaimOp("release", issueID, userID, time.Since(start), err)
	return err
}

// ForceRelease releases any claim on the issue regardless of owner. The
// caller is responsible for having authorized the acting user as an admin.
func (m *Manager) ForceRelease(ctx context.Context, issueID, actorID int64) error {
	start := m.now()

	err := m.release(ctx, issueID, actorID, true)
	logger.LogClaimOp("force_release", issueID, actorID, time.Since(start), err)
	return err
}

func (m *Manager) release(ctx context.Context, issueID, userID int64, force bool) error {
	releasedAt := m.now()

	var won bool
	var err error
	if force {
		won, err = m.issues.ForceRelease(ctx, issueID, releasedAt)
	} else {
		won, err = m.issues.Release(ctx, issueID, userID, releasedAt)
	}
	if err != nil {
		return m.translateStorageErr(err, issueID)
	}

	if !won {
		issue, err := m.issues.GetByID(ctx, issueID)
		if err != nil {
			return m.translateStorageErr(err, issueID)
		}
		if issue.Status != models.IssueStatusClaimed {
			return conflict(ErrNotClaimed, issue)
		}
		return conflict(ErrNotOwner, issue)
	}

	detail := ""
	if force {
		detail = "released by admin"
	}
	m.recordEvent(ctx, issueID, userID, models.ClaimActionReleased, detail, releasedAt)
	return nil
}

// Extend pushes the claim deadline forward by the requested number of days.
// The request is rejected entirely if the day count or justification is out
// of bounds; approved extensions stack without a cumulative cap.
func (m *Manager) Extend(ctx context.Context, issueID, userID int64, days int, justification string) (*ExtensionReceipt, error) {
	start := m.now()

	receipt, err := m.extend(ctx, issueID, userID, days, justification)
	logger.LogClaimOp("extend", issueID, userID, time.Since(start), err)
	return receipt, err
}

func (m *Manager) extend(ctx context.Context, issueID, userID int64, days int, justification string) (*ExtensionReceipt, error) {
	if err := m.policy.ValidateExtension(days, justification); err != nil {
		return nil, err
	}

	now := m.now()
	won, err := m.issues.Extend(ctx, issueID, userID, days, m.policy.LapsedBefore(now), now)
	if err != nil {
		return nil, m.translateStorageErr(err, issueID)
	}

	if !won {
		issue, err := m.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, m.translateStorageErr(err, issueID)
		}
		switch {
		case issue.Status != models.IssueStatusClaimed:
			return nil, conflict(ErrNotClaimed, issue)
		case issue.ClaimedBy == nil || *issue.ClaimedBy != userID:
			return nil, conflict(ErrNotOwner, issue)
		default:
			// Claimed by this user but the deadline lapsed past the grace
			// period: the claim is as good as reclaimed.
			return nil, conflict(ErrNotClaimed, issue)
		}
	}

	issue, err := m.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, m.translateStorageErr(err, issueID)
	}
	if issue.ClaimExpiresAt == nil {
		// The sweep cannot have won: the extend update already committed.
		// A nil deadline here means the row was force-released in between.
		return nil, conflict(ErrNotClaimed, issue)
	}

	m.recordEvent(ctx, issueID, userID, models.ClaimActionExtended,
		fmt.Sprintf("+%dd: %s", days, justification), now)

	return &ExtensionReceipt{
		IssueID:      issueID,
		DaysAdded:    days,
		NewExpiresAt: *issue.ClaimExpiresAt,
	}, nil
}

// Query reports the claim state of an issue.
func (m *Manager) Query(ctx context.Context, issueID int64) (*ClaimStatus, error) {
	issue, err := m.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, m.translateStorageErr(err, issueID)
	}

	status := &ClaimStatus{
		IssueID: issue.ID,
		Status:  issue.Status,
	}

	if issue.Status == models.IssueStatusClaimed {
		// Lazy expiry: a claim past deadline + grace is reported available
		// even if the sweep has not reclaimed the row yet.
		if issue.ClaimExpiresAt != nil && !issue.ClaimExpiresAt.After(m.policy.LapsedBefore(m.now())) {
			status.Status = models.IssueStatusAvailable
			return status, nil
		}
		status.ClaimedBy = issue.ClaimedBy
		status.ClaimedAt = issue.ClaimedAt
		status.ExpiresAt = issue.ClaimExpiresAt
	}

	return status, nil
}

// History returns the recent claim audit events for an issue.
func (m *Manager) History(ctx context.Context, issueID int64, limit int) ([]*models.ClaimEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	events, err := m.events.ListByIssue(ctx, issueID, limit)
	if err != nil {
		return nil, m.translateStorageErr(err, issueID)
	}
	return events, nil
}

func classifyClaimConflict(issue *models.Issue) error {
	if issue.Status.Terminal() {
		return conflict(ErrNotClaimable, issue)
	}
	return conflict(ErrAlreadyClaimed, issue)
}

func (m *Manager) translateStorageErr(err error, issueID int64) error {
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: issue %d", ErrIssueNotFound, issueID)
	}
	return err
}

// recordEvent writes the audit trail. Failures are logged, not propagated:
// the state transition already committed and must not be reported as failed.
func (m *Manager) recordEvent(ctx context.Context, issueID, userID int64, action models.ClaimAction, detail string, at time.Time) {
	if err := m.events.Record(ctx, issueID, userID, action, detail, at); err != nil {
		slog.Warn("Failed to record claim event",
			slog.String("type", "claim"),
			slog.Int64("issue_id", issueID),
			slog.String("action", string(action)),
			slog.Any("error", err))
	}
}
