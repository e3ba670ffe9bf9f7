package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/models"
	"github.com/contribquest/contribquest/backend/utils"
	"github.com/contribquest/contribquest/contribquest/claims"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
)

// ClaimIssue handles POST /api/v1/issues/:id/claim
func (app *WebApp) ClaimIssue(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	user, ok := utils.ExtractAuthUser(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	receipt, err := app.Claims.Claim(c.Context(), issueID, user.ID)
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendCreated(c, receipt, "Issue claimed")
}

// ReleaseClaim handles POST /api/v1/issues/:id/release
func (app *WebApp) ReleaseClaim(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	user, ok := utils.ExtractAuthUser(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	if err := app.Claims.Release(c.Context(), issueID, user.ID); err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, fiber.Map{"issue_id": issueID}, "Claim released")
}

// ExtendClaim handles POST /api/v1/issues/:id/extend
func (app *WebApp) ExtendClaim(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	user, ok := utils.ExtractAuthUser(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	var req models.ExtendClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequest(c, "Invalid request body", nil)
	}

	receipt, err := app.Claims.Extend(c.Context(), issueID, user.ID, req.Days, req.Justification)
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, receipt, "Claim deadline extended")
}

// ForceReleaseClaim handles POST /api/v1/issues/:id/force-release
func (app *WebApp) ForceReleaseClaim(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	user, ok := utils.ExtractAuthUser(c)
	if !ok {
		return utils.SendUnauthorized(c, "Authentication required")
	}

	if err := app.Claims.ForceRelease(c.Context(), issueID, user.ID); err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, fiber.Map{"issue_id": issueID}, "Claim force-released")
}

// GetClaim handles GET /api/v1/issues/:id/claim
func (app *WebApp) GetClaim(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	status, err := app.Claims.Query(c.Context(), issueID)
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, status, "")
}

// ListClaimEvents handles GET /api/v1/issues/:id/events
func (app *WebApp) ListClaimEvents(c *fiber.Ctx) error {
	issueID, err := parseIssueID(c)
	if err != nil {
		return utils.SendBadRequest(c, "Invalid issue ID", nil)
	}

	limit := c.QueryInt("limit", 50)
	events, err := app.Claims.History(c.Context(), issueID, limit)
	if err != nil {
		return sendClaimError(c, err)
	}

	return utils.SendSuccess(c, events, "")
}

// sendClaimError maps claim lifecycle errors onto HTTP responses. Conflict
// outcomes carry a machine-readable code so clients can distinguish a taken
// issue from a lost ownership check.
func sendClaimError(c *fiber.Ctx, err error) error {
	var conflictErr *claims.ConflictError
	var validationErr *claims.ValidationError

	switch {
	case errors.Is(err, claims.ErrIssueNotFound):
		return utils.SendNotFound(c, "Issue not found")
	case errors.As(err, &validationErr):
		details := map[string]string{"field": validationErr.Field}
		return utils.SendUnprocessableEntity(c, validationErr.Error(), details)
	case errors.As(err, &conflictErr):
		return utils.SendConflict(c, conflictCode(conflictErr), conflictErr.Error(), nil)
	case repositories.IsStorageUnavailable(err):
		return utils.SendServiceUnavailable(c, "Storage temporarily unavailable")
	default:
		return utils.SendInternalServerError(c, "Claim operation failed")
	}
}

func conflictCode(err *claims.ConflictError) string {
	switch {
	case errors.Is(err, claims.ErrAlreadyClaimed):
		return "ALREADY_CLAIMED"
	case errors.Is(err, claims.ErrNotClaimable):
		return "NOT_CLAIMABLE"
	case errors.Is(err, claims.ErrNotClaimed):
		return "NOT_CLAIMED"
	case errors.Is(err, claims.ErrNotOwner):
		return "NOT_CLAIM_OWNER"
	default:
		return "CONFLICT"
	}
}
