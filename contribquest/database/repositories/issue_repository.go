package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// SearchFilters narrows issue listings. Zero values mean "no filter".
type SearchFilters struct {
	Languages    []string
	Labels       []string
	Difficulties []models.DifficultyLevel
	Status       models.IssueStatus
	Query        string
	RepositoryID int64
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.limit()
}

func (p Pagination) limit() int {
	if p.PageSize < 1 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// FilterOptions holds the distinct values available for issue filtering.
type FilterOptions struct {
	Languages    []string `json:"languages"`
	Difficulties []string `json:"difficulties"`
	Labels       []string `json:"labels"`
}

// IssueRepository persists issues and performs every claim state transition
// as a single atomic conditional update. The boolean results report whether
// the update's precondition held at commit time (rows affected > 0); callers
// never decide to mutate based on a prior read.
type IssueRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Issue, error)
	Insert(ctx context.Context, issue *models.Issue) error

	Claim(ctx context.Context, issueID, userID int64, claimedAt, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, issueID, userID int64, releasedAt time.Time) (bool, error)
	ForceRelease(ctx context.Context, issueID int64, releasedAt time.Time) (bool, error)
	ReleaseExpired(ctx context.Context, issueID int64, lapsedBefore, releasedAt time.Time) (bool, error)
	Extend(ctx context.Context, issueID, userID int64, days int, lapsedBefore, now time.Time) (bool, error)

	FindExpired(ctx context.Context, lapsedBefore time.Time, limit int) ([]*models.Issue, error)
	FindExpiring(ctx context.Context, from, until time.Time, limit int) ([]*models.Issue, error)

	List(ctx context.Context, filters SearchFilters, page Pagination) ([]*models.Issue, int, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
}

type issueRepository struct {
	*BaseRepository
}

func NewIssueRepository(db *bun.DB) IssueRepository {
	return &issueRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *issueRepository) GetByID(ctx context.Context, id int64) (*models.Issue, error) {
	issue := new(models.Issue)

	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(issue).
			Where("id = ?", id).
			Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "issue", ID: id}
	}
	if err != nil {
		return nil, r.HandleErrorWithID("get", "issue", id, err)
	}
	return issue, nil
}

func (r *issueRepository) Insert(ctx context.Context, issue *models.Issue) error {
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(issue).Exec(ctx)
		return err
	})
	return r.HandleError("insert", "issue", err)
}

// Claim transitions available -> claimed. The availability check lives in
// the WHERE clause, so concurrent claimers race on the row update itself:
// exactly one sees rows affected = 1.
func (r *issueRepository) Claim(ctx context.Context, issueID, userID int64, claimedAt, expiresAt time.Time) (bool, error) {
	var won bool
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		res, err := r.db.NewUpdate().
			Model((*models.Issue)(nil)).
			Set("status = ?", models.IssueStatusClaimed).
			Set("claimed_by = ?", userID).
			Set("claimed_at = ?", claimedAt).
			Set("claim_expires_at = ?", expiresAt).
			Set("updated_at = ?", claimedAt).
			Where("id = ?", issueID).
			Where("status = ?", models.IssueStatusAvailable).
			Exec(ctx)
		if err != nil {
			return err
		}
		won, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.HandleErrorWithID("claim", "issue", issueID, err)
	}
	return won, nil
}

// Release transitions claimed -> available for the owning user only.
func (r *issueRepository) Release(ctx context.Context, issueID, userID int64, releasedAt time.Time) (bool, error) {
	var won bool
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		res, err := r.releaseQuery(releasedAt).
			Where("id = ?", issueID).
			Where("status = ?", models.IssueStatusClaimed).
			Where("claimed_by = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		won, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.HandleErrorWithID("release", "issue", issueID, err)
	}
	return won, nil
}

// ForceRelease releases regardless of owner. Admin path.
func (r *issueRepository) ForceRelease(ctx context.Context, issueID int64, releasedAt time.Time) (bool, error) {
	var won bool
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		res, err := r.releaseQuery(releasedAt).
			Where("id = ?", issueID).
			Where("status = ?", models.IssueStatusClaimed).
			Exec(ctx)
		if err != nil {
			return err
		}
		won, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.HandleErrorWithID("force_release", "issue", issueID, err)
	}
	return won, nil
}

// ReleaseExpired releases a claim whose deadline plus grace period has
// lapsed. The expiry predicate rides inside the update, so a user racing to
// extend at the same instant loses or wins atomically, never both.
func (r *issueRepository) ReleaseExpired(ctx context.Context, issueID int64, lapsedBefore, releasedAt time.Time) (bool, error) {
	var won bool
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		res, err := r.releaseQuery(releasedAt).
			Where("id = ?", issueID).
			Where("status = ?", models.IssueStatusClaimed).
			Where("claim_expires_at <= ?", lapsedBefore).
			Exec(ctx)
		if err != nil {
			return err
		}
		won, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.HandleErrorWithID("release_expired", "issue", issueID, err)
	}
	return won, nil
}

func (r *issueRepository) releaseQuery(releasedAt time.Time) *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model((*models.Issue)(nil)).
		Set("status = ?", models.IssueStatusAvailable).
		Set("claimed_by = NULL").
		Set("claimed_at = NULL").
		Set("claim_expires_at = NULL").
		Set("updated_at = ?", releasedAt)
}

// Extend pushes the deadline forward by the given number of days. The
// arithmetic runs in the database against the current deadline, guarded by
// ownership and by the claim not having lapsed past its grace period.
func (r *issueRepository) Extend(ctx context.Context, issueID, userID int64, days int, lapsedBefore, now time.Time) (bool, error) {
	var won bool
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		res, err := r.db.NewUpdate().
			Model((*models.Issue)(nil)).
			Set("claim_expires_at = claim_expires_at + make_interval(days => ?)", days).
			Set("updated_at = ?", now).
			Where("id = ?", issueID).
			Where("status = ?", models.IssueStatusClaimed).
			Where("claimed_by = ?", userID).
			Where("claim_expires_at > ?", lapsedBefore).
			Exec(ctx)
		if err != nil {
			return err
		}
		won, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.HandleErrorWithID("extend", "issue", issueID, err)
	}
	return won, nil
}

func (r *issueRepository) FindExpired(ctx context.Context, lapsedBefore time.Time, limit int) ([]*models.Issue, error) {
	var issues []*models.Issue
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&issues).
			Where("status = ?", models.IssueStatusClaimed).
			Where("claim_expires_at IS NOT NULL").
			Where("claim_expires_at <= ?", lapsedBefore).
			Order("claim_expires_at ASC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.HandleError("find_expired", "issue", err)
	}
	return issues, nil
}

func (r *issueRepository) FindExpiring(ctx context.Context, from, until time.Time, limit int) ([]*models.Issue, error) {
	var issues []*models.Issue
	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&issues).
			Where("status = ?", models.IssueStatusClaimed).
			Where("claim_expires_at IS NOT NULL").
			Where("claim_expires_at > ?", from).
			Where("claim_expires_at <= ?", until).
			Order("claim_expires_at ASC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.HandleError("find_expiring", "issue", err)
	}
	return issues, nil
}

func (r *issueRepository) List(ctx context.Context, filters SearchFilters, page Pagination) ([]*models.Issue, int, error) {
	var issues []*models.Issue
	var total int

	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		q := r.db.NewSelect().Model(&issues)
		q = applyFilters(q, filters)

		var err error
		total, err = q.Order("created_at DESC").
			Limit(page.limit()).
			Offset(page.offset()).
			ScanAndCount(ctx)
		return err
	})
	if err != nil {
		return nil, 0, r.HandleError("list", "issue", err)
	}
	return issues, total, nil
}

func applyFilters(q *bun.SelectQuery, f SearchFilters) *bun.SelectQuery {
	if len(f.Languages) > 0 {
		q = q.Where("programming_language IN (?)", bun.In(f.Languages))
	}
	if len(f.Labels) > 0 {
		q = q.Where("labels && ?", pgdialect.Array(f.Labels))
	}
	if len(f.Difficulties) > 0 {
		q = q.Where("difficulty_level IN (?)", bun.In(f.Difficulties))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RepositoryID > 0 {
		q = q.Where("repository_id = ?", f.RepositoryID)
	}
	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("title ILIKE ?", pattern).
				WhereOr("description ILIKE ?", pattern)
		})
	}
	return q
}

func (r *issueRepository) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	opts := &FilterOptions{}

	err := r.RetryTransient(ctx, func(ctx context.Context) error {
		if err := r.db.NewSelect().
			Model((*models.Issue)(nil)).
			ColumnExpr("DISTINCT programming_language").
			Where("programming_language IS NOT NULL AND programming_language != ''").
			Where("status = ?", models.IssueStatusAvailable).
			Order("programming_language ASC").
			Scan(ctx, &opts.Languages); err != nil {
			return err
		}

		if err := r.db.NewSelect().
			Model((*models.Issue)(nil)).
			ColumnExpr("DISTINCT difficulty_level").
			Where("status = ?", models.IssueStatusAvailable).
			Order("difficulty_level ASC").
			Scan(ctx, &opts.Difficulties); err != nil {
			return err
		}

		return r.db.NewSelect().
			Model((*models.Issue)(nil)).
			ColumnExpr("DISTINCT unnest(labels) AS label").
			Where("status = ?", models.IssueStatusAvailable).
			OrderExpr("label ASC").
			Scan(ctx, &opts.Labels)
	})
	if err != nil {
		return nil, r.HandleError("filter_options", "issue", err)
	}
	return opts, nil
}

func affected(res sql.Result) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
