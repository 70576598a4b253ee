package audit

import (
	"context"
	"time"
)

// MaxBrowserLen bounds the stored user-agent string.
const MaxBrowserLen = 1000

// LoginAttempt is one record in the append-only login audit trail.
// Records are written on every authentication attempt and never mutated.
type LoginAttempt struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Provider string    `json:"provider"`
	IP       string    `json:"ip,omitempty"`
	Browser  string    `json:"browser,omitempty"`
	Region   string    `json:"region,omitempty"`
	Success  bool      `json:"success"`
	LoginAt  time.Time `json:"login_at"`
}

// AttemptWriter appends records to the audit trail.
type AttemptWriter interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
}

// AttemptReader provides the read access the risk engine needs: full history
// windows ordered by time plus distinct value sets over arbitrary windows.
type AttemptReader interface {
	ListSince(ctx context.Context, userID string, since time.Time) ([]LoginAttempt, error)
	DistinctIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error)
	DistinctBrowsers(ctx context.Context, userID string, from, to time.Time) ([]string, error)
}

// AttemptStore is the full audit persistence surface.
type AttemptStore interface {
	AttemptWriter
	AttemptReader
}

// Truncate returns s cut down to max bytes. Used for user-agent strings
// before they reach storage.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
