package repository

import (
	"context"
	"time"
)

// SubmittedRepository remembers recently submitted batch keywords.
type SubmittedRepository interface {
	// MarkSubmitted records a keyword for the given duration.
	MarkSubmitted(ctx context.Context, keyword string, expiry time.Duration) error
	// IsSubmitted reports whether the keyword was submitted within its expiry.
	IsSubmitted(ctx context.Context, keyword string) (bool, error)
	// RemoveSubmitted forgets a keyword, used when a resubmission is forced.
	RemoveSubmitted(ctx context.Context, keyword string) error
}
