package claims

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
)

// fakeStore is an in-memory stand-in for the issue and event repositories.
// Each mutation checks its precondition and applies under one lock, matching
// the atomicity of the real conditional updates.
type fakeStore struct {
	mu     sync.Mutex
	issues map[int64]*models.Issue
	events []*models.ClaimEvent
	nextID int64

	// denyClaims forces the next N Claim calls to report a lost race.
	denyClaims int
	// failEvents makes event recording fail, for best-effort audit tests.
	failEvents bool
}

var errEventSink = errors.New("event sink down")

func newFakeStore() *fakeStore {
	return &fakeStore{issues: make(map[int64]*models.Issue), nextID: 1}
}

func (s *fakeStore) addIssue(issue *models.Issue) *models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID == 0 {
		issue.ID = s.nextID
		s.nextID++
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusAvailable
	}
	s.issues[issue.ID] = issue
	return issue
}

func copyIssue(i *models.Issue) *models.Issue {
	c := *i
	return &c
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "issue", ID: id}
	}
	return copyIssue(issue), nil
}

func (s *fakeStore) Insert(_ context.Context, issue *models.Issue) error {
	s.addIssue(issue)
	return nil
}

func (s *fakeStore) Claim(_ context.Context, issueID, userID int64, claimedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denyClaims > 0 {
		s.denyClaims--
		return false, nil
	}
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusAvailable {
		return false, nil
	}
	issue.Status = models.IssueStatusClaimed
	issue.ClaimedBy = &userID
	issue.ClaimedAt = &claimedAt
	issue.ClaimExpiresAt = &expiresAt
	issue.UpdatedAt = claimedAt
	return true, nil
}

func (s *fakeStore) Release(_ context.Context, issueID, userID int64, releasedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed || issue.ClaimedBy == nil || *issue.ClaimedBy != userID {
		return false, nil
	}
	s.clearClaim(issue, releasedAt)
	return true, nil
}

func (s *fakeStore) ForceRelease(_ context.Context, issueID int64, releasedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed {
		return false, nil
	}
	s.clearClaim(issue, releasedAt)
	return true, nil
}

func (s *fakeStore) ReleaseExpired(_ context.Context, issueID int64, lapsedBefore, releasedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed || issue.ClaimExpiresAt == nil || issue.ClaimExpiresAt.After(lapsedBefore) {
		return false, nil
	}
	s.clearClaim(issue, releasedAt)
	return true, nil
}

func (s *fakeStore) clearClaim(issue *models.Issue, at time.Time) {
	issue.Status = models.IssueStatusAvailable
	issue.ClaimedBy = nil
	issue.ClaimedAt = nil
	issue.ClaimExpiresAt = nil
	issue.UpdatedAt = at
}

func (s *fakeStore) Extend(_ context.Context, issueID, userID int64, days int, lapsedBefore, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed || issue.ClaimedBy == nil || *issue.ClaimedBy != userID {
		return false, nil
	}
	if issue.ClaimExpiresAt == nil || !issue.ClaimExpiresAt.After(lapsedBefore) {
		return false, nil
	}
	extended := issue.ClaimExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	issue.ClaimExpiresAt = &extended
	issue.UpdatedAt = now
	return true, nil
}

func (s *fakeStore) FindExpired(_ context.Context, lapsedBefore time.Time, limit int) ([]*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		if issue.Status == models.IssueStatusClaimed && issue.ClaimExpiresAt != nil && !issue.ClaimExpiresAt.After(lapsedBefore) {
			out = append(out, copyIssue(issue))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindExpiring(_ context.Context, from, until time.Time, limit int) ([]*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		if issue.Status != models.IssueStatusClaimed || issue.ClaimExpiresAt == nil {
			continue
		}
		if issue.ClaimExpiresAt.After(from) && !issue.ClaimExpiresAt.After(until) {
			out = append(out, copyIssue(issue))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) List(_ context.Context, filters repositories.SearchFilters, _ repositories.Pagination) ([]*models.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		if filters.Status != "" && issue.Status != filters.Status {
			continue
		}
		out = append(out, copyIssue(issue))
	}
	return out, len(out), nil
}

func (s *fakeStore) FilterOptions(_ context.Context) (*repositories.FilterOptions, error) {
	return &repositories.FilterOptions{}, nil
}

func (s *fakeStore) Record(_ context.Context, issueID, userID int64, action models.ClaimAction, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEvents {
		return &repositories.RepositoryError{Operation: "record", Entity: "claim_event", Err: errEventSink}
	}
	s.events = append(s.events, &models.ClaimEvent{
		IssueID:    issueID,
		UserID:     userID,
		Action:     action,
		Detail:     detail,
		OccurredAt: at,
	})
	return nil
}

func (s *fakeStore) ListByIssue(_ context.Context, issueID int64, limit int) ([]*models.ClaimEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ClaimEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].IssueID == issueID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID int64, limit int) ([]*models.ClaimEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ClaimEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].UserID == userID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *fakeStore) eventActions(issueID int64) []models.ClaimAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClaimAction
	for _, e := range s.events {
		if e.IssueID == issueID {
			out = append(out, e.Action)
		}
	}
	return out
}
