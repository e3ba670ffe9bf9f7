package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/models"
	"github.com/contribquest/contribquest/backend/utils"
	dbmodels "github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
)

// ListIssues handles GET /api/v1/issues
func (app *WebApp) ListIssues(c *fiber.Ctx) error {
	filters := parseFilters(c)
	pagination := repositories.Pagination{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", repositories.DefaultPageSize),
	}

	page, err := app.Issues.List(c.Context(), filters, pagination)
	if err != nil {
		return sendClaimError(c, err)
	}

	info := models.NewPaginationInfo(page.Page, page.PageSize, page.Total)
	return utils.SendPaginated(c, page.Issues, info, "")
}

// GetIssue handles GET /api/v1/issues/:id
func (app *WebApp) GetIssue(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	issue, err := app.Issues.Get(c.Context(), issueID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return utils.SendNotFound(c, "Issue not found")
		}
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, issue, "")
}

// SuggestIssues handles GET /api/v1/issues/suggest
func (app *WebApp) SuggestIssues(c *fiber.Ctx) error {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		return utils.SendBadRequest(c, "Missing query parameter 'q'", nil)
	}

	results, err := app.Issues.Suggest(c.Context(), query, parseFilters(c))
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, results, "")
}

// GetFilterOptions handles GET /api/v1/issues/filters
func (app *WebApp) GetFilterOptions(c *fiber.Ctx) error {
	options, err := app.Issues.FilterOptions(c.Context())
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, options, "")
}

// ListExpiringClaims handles GET /api/v1/issues/expiring
func (app *WebApp) ListExpiringClaims(c *fiber.Ctx) error {
	hours := c.QueryInt("within_hours", 24)
	if hours < 1 || hours > 24*7 {
		return utils.SendBadRequest(c, "within_hours must be between 1 and 168", nil)
	}

	expiring, err := app.Issues.Expiring(c.Context(), time.Duration(hours)*time.Hour, c.QueryInt("limit", 0))
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, expiring, "")
}

// CreateIssue handles POST /api/v1/issues
func (app *WebApp) CreateIssue(c *fiber.Ctx) error {
	var req models.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	details := map[string]string{}
	if strings.TrimSpace(req.Title) == "" {
		details["title"] = "required"
	}
	if req.GithubIssueID <= 0 {
		details["github_issue_id"] = "required"
	}
	if len(details) > 0 {
		return utils.SendUnprocessableEntity(c, "Invalid issue", details)
	}

	issue := &dbmodels.Issue{
		GithubIssueID:       req.GithubIssueID,
		RepositoryID:        req.RepositoryID,
		Title:               req.Title,
		Description:         req.Description,
		Labels:              req.Labels,
		ProgrammingLanguage: req.ProgrammingLanguage,
		DifficultyLevel:     dbmodels.DifficultyLevel(req.DifficultyLevel),
		GithubURL:           req.GithubURL,
		Status:              dbmodels.IssueStatusAvailable,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	if err := app.Issues.Create(c.Context(), issue); err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendCreated(c, issue, "Issue registered")
}

func parseFilters(c *fiber.Ctx) repositories.SearchFilters {
	filters := repositories.SearchFilters{
		Languages:    splitParam(c.Query("languages")),
		Labels:       splitParam(c.Query("labels")),
		Query:        c.Query("search"),
		RepositoryID: int64(c.QueryInt("repository_id", 0)),
	}

	if status := c.Query("status"); status != "" {
		filters.Status = dbmodels.IssueStatus(status)
	}
	for _, d := range splitParam(c.Query("difficulties")) {
		filters.Difficulties = append(filters.Difficulties, dbmodels.DifficultyLevel(d))
	}

	return filters
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
