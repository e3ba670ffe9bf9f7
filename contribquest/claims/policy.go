package claims

import (
	"strings"
	"time"

	"github.com/contribquest/contribquest/contribquest"
	"github.com/contribquest/contribquest/contribquest/database/models"
)

// DeadlinePolicy computes claim deadlines from issue difficulty and
// validates deadline extension requests.
type DeadlinePolicy struct {
	cfg contribquest.ClaimsConfig
}

func NewDeadlinePolicy(cfg contribquest.ClaimsConfig) *DeadlinePolicy {
	return &DeadlinePolicy{cfg: cfg}
}

// BaseDuration returns the base lease duration for a difficulty level.
// Unknown or unclassified difficulties fall back to the easy duration.
func (p *DeadlinePolicy) BaseDuration(level models.DifficultyLevel) time.Duration {
	days := p.cfg.EasyDays
	switch level {
	case models.DifficultyMedium:
		days = p.cfg.MediumDays
	case models.DifficultyHard:
		days = p.cfg.HardDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Deadline computes the claim expiry for an issue claimed at the given time.
func (p *DeadlinePolicy) Deadline(level models.DifficultyLevel, claimedAt time.Time) time.Time {
	return claimedAt.Add(p.BaseDuration(level))
}

// GracePeriod is the buffer past the deadline before a claim is reclaimed.
func (p *DeadlinePolicy) GracePeriod() time.Duration {
	return p.cfg.GracePeriod()
}

// LapsedBefore returns the expiry cutoff: claims whose deadline is at or
// before this instant have burned through their grace period.
func (p *DeadlinePolicy) LapsedBefore(now time.Time) time.Time {
	return now.Add(-p.cfg.GracePeriod())
}

// ValidateExtension checks an extension request. Requests outside the
// configured day bounds or with a justification shorter than the minimum are
// rejected entirely; there is no partial application.
func (p *DeadlinePolicy) ValidateExtension(days int, justification string) error {
	if days < p.cfg.MinExtensionDays || days > p.cfg.MaxExtensionDays {
		return &ValidationError{Kind: ErrInvalidDuration, Field: "extension_days", Value: days}
	}

	j := strings.TrimSpace(justification)
	if len(j) < p.cfg.MinJustificationLen {
		return &ValidationError{Kind: ErrInvalidJustification, Field: "justification", Value: len(j)}
	}
	if p.cfg.MaxJustificationLen > 0 && len(j) > p.cfg.MaxJustificationLen {
		return &ValidationError{Kind: ErrInvalidJustification, Field: "justification", Value: len(j)}
	}
	return nil
}
