package models

import (
	"time"

	"github.com/uptrace/bun"
)

type IssueStatus string

const (
	IssueStatusAvailable IssueStatus = "available"
	IssueStatusClaimed   IssueStatus = "claimed"
	IssueStatusCompleted IssueStatus = "completed"
	IssueStatusClosed    IssueStatus = "closed"
)

// Terminal reports whether no further claim operations are permitted.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusCompleted || s == IssueStatusClosed
}

type DifficultyLevel string

const (
	DifficultyEasy    DifficultyLevel = "easy"
	DifficultyMedium  DifficultyLevel = "medium"
	DifficultyHard    DifficultyLevel = "hard"
	DifficultyUnknown DifficultyLevel = "unknown"
)

type Issue struct {
	bun.BaseModel `bun:"table:issues,alias:i"`

	ID            int64    `bun:"id,pk,autoincrement" json:"id"`
	GithubIssueID int64    `bun:"github_issue_id,notnull" json:"github_issue_id"`
	RepositoryID  int64    `bun:"repository_id,notnull" json:"repository_id"`
	Title         string   `bun:"title,notnull" json:"title"`
	Description   string   `bun:"description" json:"description,omitempty"`
	Labels        []string `bun:"labels,array" json:"labels"`

	ProgrammingLanguage string          `bun:"programming_language" json:"programming_language,omitempty"`
	DifficultyLevel     DifficultyLevel `bun:"difficulty_level,notnull,default:'unknown'" json:"difficulty_level"`

	Status         IssueStatus `bun:"status,notnull,default:'available'" json:"status"`
	ClaimedBy      *int64      `bun:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time  `bun:"claimed_at" json:"claimed_at,omitempty"`
	ClaimExpiresAt *time.Time  `bun:"claim_expires_at" json:"claim_expires_at,omitempty"`

	GithubURL string    `bun:"github_url,notnull" json:"github_url"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// ClaimedByUser reports whether the issue currently carries a claim held by
// the given user.
func (i *Issue) ClaimedByUser(userID int64) bool {
	return i.Status == IssueStatusClaimed && i.ClaimedBy != nil && *i.ClaimedBy == userID
}
