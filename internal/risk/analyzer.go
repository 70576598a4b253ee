package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/obs"
)

// Analysis window bounds.
const (
	DefaultPeriodDays   = 30
	MinPeriodDays       = 1
	MaxPeriodDays       = 365
	historyLookbackDays = 90
)

var (
	// ErrUserNotFound indicates the analysis target could not be resolved.
	ErrUserNotFound = errors.New("risk: user not found")
	// ErrInvalidPeriod indicates the requested window is outside 1–365 days.
	ErrInvalidPeriod = errors.New("risk: analysis period must be between 1 and 365 days")
	// ErrAnalysisFailed is the generic failure surfaced to callers when the
	// pipeline hits an unexpected error; details go to the log, never the
	// caller.
	ErrAnalysisFailed = errors.New("risk: security analysis failed")
)

// UserLookup resolves the target user. identity.UserStore satisfies it.
type UserLookup interface {
	Find(ctx context.Context, id string) (*identity.User, error)
}

// Options parametrizes one analysis run.
type Options struct {
	PeriodDays          int
	IncludeFailedLogins bool
}

// DefaultOptions returns the standard 30-day window with failures included.
func DefaultOptions() Options {
	return Options{PeriodDays: DefaultPeriodDays, IncludeFailedLogins: true}
}

// Analyzer runs the heuristic pipeline over a user's login history. The
// detectors are read-only and order-insensitive; they run sequentially here
// since each works on an in-memory slice.
type Analyzer struct {
	attempts audit.AttemptReader
	users    UserLookup
	now      func() time.Time
}

// AnalyzerOption configures the Analyzer.
type AnalyzerOption func(*Analyzer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(attempts audit.AttemptReader, users UserLookup, opts ...AnalyzerOption) (*Analyzer, error) {
	if attempts == nil {
		return nil, errors.New("attempt reader is required")
	}
	if users == nil {
		return nil, errors.New("user lookup is required")
	}
	a := &Analyzer{attempts: attempts, users: users, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze produces the risk report for one user. Validation and not-found
// conditions surface as typed errors; anything unexpected inside the
// pipeline is logged in full and collapsed into ErrAnalysisFailed.
func (a *Analyzer) Analyze(ctx context.Context, userID string, opts Options) (*Report, error) {
	if opts.PeriodDays == 0 {
		opts.PeriodDays = DefaultPeriodDays
	}
	if opts.PeriodDays < MinPeriodDays || opts.PeriodDays > MaxPeriodDays {
		return nil, ErrInvalidPeriod
	}
	user, err := a.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		obs.Error("resolve analysis target", err, map[string]any{"user_id": userID})
		return nil, ErrAnalysisFailed
	}

	report, err := a.analyze(ctx, user, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		obs.Error("security analysis pipeline", err, map[string]any{"user_id": userID})
		obs.ObserveAnalysis("error")
		return nil, ErrAnalysisFailed
	}
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, user *identity.User, opts Options) (*Report, error) {
	now := a.now().UTC()
	since := now.AddDate(0, 0, -opts.PeriodDays)

	history, err := a.attempts.ListSince(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("load login history: %w", err)
	}
	if !opts.IncludeFailedLogins {
		history = successfulAttempts(history)
	}

	report := &Report{
		UserID:      user.ID,
		UserName:    user.UserName,
		PeriodDays:  opts.PeriodDays,
		GeneratedAt: now,
	}

	if len(history) == 0 {
		report.Level = LevelLow
		report.Recommendations = []string{"No recent login activity to analyze."}
		obs.ObserveAnalysis("no_activity")
		return report, nil
	}

	histFrom := since.AddDate(0, 0, -historyLookbackDays)
	knownIPs, err := a.attempts.DistinctIPs(ctx, user.ID, histFrom, since)
	if err != nil {
		return nil, fmt.Errorf("load historical addresses: %w", err)
	}
	knownBrowsers, err := a.attempts.DistinctBrowsers(ctx, user.ID, histFrom, since)
	if err != nil {
		return nil, fmt.Errorf("load historical devices: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []Finding
	appendFinding := func(f *Finding) {
		if f == nil {
			return
		}
		findings = append(findings, *f)
		obs.ObserveFinding(string(f.Category))
	}
	appendFinding(detectNewIPs(history, knownIPs))
	appendFinding(detectSuspiciousLocations(history))
	if opts.IncludeFailedLogins {
		appendFinding(detectFailedLogins(history))
	}
	appendFinding(detectUnusualTimes(history))
	appendFinding(detectNewDevices(history, knownBrowsers))
	appendFinding(detectConcurrentSessions(history))
	appendFinding(detectRapidMovement(history))

	report.Findings = findings
	report.Score = scoreFindings(findings)
	report.Level = levelForScore(report.Score)
	report.ShouldChangePassword = report.Level >= LevelMedium
	report.Recommendations = recommendationsFor(findings, report.Level)

	obs.ObserveAnalysis(report.Level.String())
	return report, nil
}
