package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contribquest/contribquest/backend/middleware"
	"github.com/contribquest/contribquest/contribquest"
	"github.com/contribquest/contribquest/contribquest/claims"
	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
	"github.com/contribquest/contribquest/contribquest/issues"
)

// memStore backs the API tests with in-memory issue state.
type memStore struct {
	mu     sync.Mutex
	issues map[int64]*models.Issue
}

func (s *memStore) GetByID(_ context.Context, id int64) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "issue", ID: id}
	}
	c := *issue
	return &c, nil
}

func (s *memStore) Insert(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue.ID = int64(len(s.issues) + 1)
	s.issues[issue.ID] = issue
	return nil
}

func (s *memStore) Claim(_ context.Context, issueID, userID int64, claimedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusAvailable {
		return false, nil
	}
	issue.Status = models.IssueStatusClaimed
	issue.ClaimedBy = &userID
	issue.ClaimedAt = &claimedAt
	issue.ClaimExpiresAt = &expiresAt
	return true, nil
}

func (s *memStore) Release(_ context.Context, issueID, userID int64, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed || issue.ClaimedBy == nil || *issue.ClaimedBy != userID {
		return false, nil
	}
	issue.Status = models.IssueStatusAvailable
	issue.ClaimedBy = nil
	issue.ClaimedAt = nil
	issue.ClaimExpiresAt = nil
	return true, nil
}

func (s *memStore) ForceRelease(_ context.Context, issueID int64, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed {
		return false, nil
	}
	issue.Status = models.IssueStatusAvailable
	issue.ClaimedBy = nil
	issue.ClaimedAt = nil
	issue.ClaimExpiresAt = nil
	return true, nil
}

func (s *memStore) ReleaseExpired(context.Context, int64, time.Time, time.Time) (bool, error) {
	return false, nil
}

func (s *memStore) Extend(_ context.Context, issueID, userID int64, days int, lapsedBefore, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok || issue.Status != models.IssueStatusClaimed || issue.ClaimedBy == nil || *issue.ClaimedBy != userID {
		return false, nil
	}
	if issue.ClaimExpiresAt == nil || !issue.ClaimExpiresAt.After(lapsedBefore) {
		return false, nil
	}
	next := issue.ClaimExpiresAt.Add(time.Duration(days) * 24 * time.Hour)
	issue.ClaimExpiresAt = &next
	return true, nil
}

func (s *memStore) FindExpired(context.Context, time.Time, int) ([]*models.Issue, error) {
	return nil, nil
}
func (s *memStore) FindExpiring(context.Context, time.Time, time.Time, int) ([]*models.Issue, error) {
	return nil, nil
}

func (s *memStore) List(_ context.Context, _ repositories.SearchFilters, _ repositories.Pagination) ([]*models.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		c := *issue
		out = append(out, &c)
	}
	return out, len(out), nil
}

func (s *memStore) FilterOptions(context.Context) (*repositories.FilterOptions, error) {
	return &repositories.FilterOptions{}, nil
}

func (s *memStore) Record(context.Context, int64, int64, models.ClaimAction, string, time.Time) error {
	return nil
}
func (s *memStore) ListByIssue(context.Context, int64, int) ([]*models.ClaimEvent, error) {
	return nil, nil
}
func (s *memStore) ListByUser(context.Context, int64, int) ([]*models.ClaimEvent, error) {
	return nil, nil
}

func newTestApp(t *testing.T) (*fiber.App, *memStore) {
	t.Helper()

	store := &memStore{issues: map[int64]*models.Issue{
		1: {ID: 1, Title: "Fix reconnect loop", Status: models.IssueStatusAvailable, DifficultyLevel: models.DifficultyEasy},
	}}

	cfg := contribquest.DefaultConfig()
	cfg.Server.AdminToken = "test-admin-token"

	policy := claims.NewDeadlinePolicy(cfg.Claims)
	webApp := &WebApp{
		Config: cfg,
		Claims: claims.NewManager(store, store, policy),
		Issues: issues.NewService(store),
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	webApp.SetupRoutes(app)
	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func TestClaimEndpoints_Lifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, asUser("42"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["issue_id"])
	assert.NotEmpty(t, data["claim_expires_at"])

	// Second claim conflicts.
	resp, body = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, asUser("43"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "ALREADY_CLAIMED", errObj["code"])

	// Non-owner release is rejected.
	resp, body = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/release", nil, asUser("43"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errObj = body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_CLAIM_OWNER", errObj["code"])

	// Owner extends.
	resp, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/extend",
		fiber.Map{"days": 7, "justification": "waiting on maintainer feedback"}, asUser("42"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Owner releases.
	resp, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/release", nil, asUser("42"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Claim state is publicly queryable.
	resp, body = doJSON(t, app, fiber.MethodGet, "/api/v1/issues/1/claim", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, "available", data["status"])
}

func TestClaimEndpoints_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	t.Run("missing identity", func(t *testing.T) {
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed identity", func(t *testing.T) {
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, asUser("robot"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown issue", func(t *testing.T) {
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/999/claim", nil, asUser("42"))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad issue id", func(t *testing.T) {
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/abc/claim", nil, asUser("42"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("extension out of bounds", func(t *testing.T) {
		_, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, asUser("42"))
		resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/extend",
			fiber.Map{"days": 30, "justification": "a long enough justification"}, asUser("42"))
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	})
}

func TestAdminEndpoints(t *testing.T) {
	app, store := newTestApp(t)

	_, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/claim", nil, asUser("42"))

	t.Run("force release requires admin token", func(t *testing.T) {
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/force-release", nil, asUser("1"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("force release with admin token", func(t *testing.T) {
		headers := asUser("1")
		headers["X-Admin-Token"] = "test-admin-token"
		resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/issues/1/force-release", nil, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		issue, err := store.GetByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, models.IssueStatusAvailable, issue.Status)
	})

	t.Run("create issue", func(t *testing.T) {
		headers := asUser("1")
		headers["X-Admin-Token"] = "test-admin-token"
		resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/issues",
			fiber.Map{
				"github_issue_id": 555,
				"repository_id":   9,
				"title":           "Add pagination to audit log",
				"labels":          []string{"good first issue"},
				"github_url":      "https://github.com/acme/repo/issues/555",
			}, headers)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "easy", data["difficulty_level"])
	})
}
