package repositories

import (
	"context"
	"time"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// ClaimEventRepository records the audit trail of claim lifecycle actions.
type ClaimEventRepository interface {
	Record(ctx context.Context, issueID, userID int64, action models.ClaimAction, detail string, at time.Time) error
	ListByIssue(ctx context.Context, issueID int64, limit int) ([]*models.ClaimEvent, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.ClaimEvent, error)
}

type claimEventRepository struct {
	*BaseRepository
}

func NewClaimEventRepository(db *bun.DB) ClaimEventRepository {
	return &claimEventRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *claimEventRepository) Record(ctx context.Context, issueID, userID int64, action models.ClaimAction, detail string, at time.Time) error {
	event := &models.ClaimEvent{
		ID:         snowflake.New(at),
		IssueID:    issueID,
		UserID:     userID,
		Action:     action,
		Detail:     detail,
		OccurredAt: at,
	}

	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(event).Exec(ctx)
		return err
	})
	return r.HandleError("record", "claim_event", err)
}

func (r *claimEventRepository) ListByIssue(ctx context.Context, issueID int64, limit int) ([]*models.ClaimEvent, error) {
	var events []*models.ClaimEvent
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&events).
			Where("issue_id = ?", issueID).
			Order("occurred_at DESC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.HandleError("list_by_issue", "claim_event", err)
	}
	return events, nil
}

func (r *claimEventRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.ClaimEvent, error) {
	var events []*models.ClaimEvent
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&events).
			Where("user_id = ?", userID).
			Order("occurred_at DESC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.HandleError("list_by_user", "claim_event", err)
	}
	return events, nil
}
