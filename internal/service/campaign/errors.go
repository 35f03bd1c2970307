package campaign

import "errors"

// Validation errors for the campaign service layer. Lifecycle errors
// (already sent, not found) are the shared kinds in domain.
var (
	ErrMissingName    = errors.New("name is required")
	ErrMissingSubject = errors.New("subject is required")
	ErrNoScheduler    = errors.New("no dispatch scheduler configured")
)
