package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type ClaimAction string

const (
	ClaimActionClaimed  ClaimAction = "claimed"
	ClaimActionReleased ClaimAction = "released"
	ClaimActionExtended ClaimAction = "extended"
	ClaimActionExpired  ClaimAction = "expired"
)

// ClaimEvent is an append-only audit record of a claim lifecycle action.
type ClaimEvent struct {
	bun.BaseModel `bun:"table:claim_events,alias:ce"`

	ID         snowflake.ID `bun:"id,pk" json:"id"`
	IssueID    int64        `bun:"issue_id,notnull" json:"issue_id"`
	UserID     int64        `bun:"user_id,notnull" json:"user_id"`
	Action     ClaimAction  `bun:"action,notnull" json:"action"`
	Detail     string       `bun:"detail" json:"detail,omitempty"`
	OccurredAt time.Time    `bun:"occurred_at,notnull" json:"occurred_at"`
}
