package claims

import (
	"errors"
	"fmt"

	"github.com/contribquest/contribquest/contribquest/database/models"
)

// Domain error kinds. These are expected business outcomes, returned as
// values and matched with errors.Is; only storage failures are retried.
var (
	ErrAlreadyClaimed       = errors.New("issue already claimed")
	ErrNotClaimable         = errors.New("issue not claimable")
	ErrNotClaimed           = errors.New("issue not claimed")
	ErrNotOwner             = errors.New("claim held by another user")
	ErrInvalidDuration      = errors.New("invalid extension duration")
	ErrInvalidJustification = errors.New("invalid extension justification")
	ErrIssueNotFound        = errors.New("issue not found")
)

// ConflictError wraps a domain error kind with enough context for the
// calling layer to explain the conflict. The manager never formats
// user-facing text itself.
type ConflictError struct {
	Kind    error
	IssueID int64
	Status  models.IssueStatus
	Owner   *int64
}

func (e *ConflictError) Error() string {
	if e.Owner != nil {
		return fmt.Sprintf("%v: issue %d (status %s, held by user %d)", e.Kind, e.IssueID, e.Status, *e.Owner)
	}
	return fmt.Sprintf("%v: issue %d (status %s)", e.Kind, e.IssueID, e.Status)
}

func (e *ConflictError) Unwrap() error {
	return e.Kind
}

// ValidationError wraps an invalid extension request parameter.
type ValidationError struct {
	Kind  error
	Field string
	Value interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s=%v", e.Kind, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func conflict(kind error, issue *models.Issue) *ConflictError {
	return &ConflictError{
		Kind:    kind,
		IssueID: issue.ID,
		Status:  issue.Status,
		Owner:   issue.ClaimedBy,
	}
}
