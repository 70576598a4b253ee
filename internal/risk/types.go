package risk

import (
	"fmt"
	"strings"
	"time"
)

// Level orders threat severity. The numeric values are part of the scoring
// contract: a finding contributes int(Level)*10 to the report score.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON emits the textual level.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON accepts the textual form produced by MarshalJSON.
func (l *Level) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "low":
		*l = LevelLow
	case "medium":
		*l = LevelMedium
	case "high":
		*l = LevelHigh
	case "critical":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown level %s", data)
	}
	return nil
}

// Category identifies one class of login anomaly.
type Category string

const (
	CategoryNewIPAddress            Category = "new_ip_address"
	CategorySuspiciousLocation      Category = "suspicious_location"
	CategoryMultipleFailedLogins    Category = "multiple_failed_logins"
	CategoryUnusualLoginTime        Category = "unusual_login_time"
	CategoryNewDevice               Category = "new_device"
	CategoryConcurrentSessions      Category = "concurrent_sessions"
	CategoryRapidGeographicMovement Category = "rapid_geographic_movement"
)

// Finding is one detected anomaly. Findings are created fresh per analysis
// run and never persisted by this package.
type Finding struct {
	Category    Category       `json:"category"`
	Level       Level          `json:"level"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	FirstSeen   time.Time      `json:"first_seen,omitempty"`
	LastSeen    time.Time      `json:"last_seen,omitempty"`
	Count       int            `json:"count"`
}

// Report is the aggregate analysis output for one user and window.
type Report struct {
	UserID               string    `json:"user_id"`
	UserName             string    `json:"user_name,omitempty"`
	PeriodDays           int       `json:"period_days"`
	Level                Level     `json:"level"`
	Score                int       `json:"score"`
	Findings             []Finding `json:"findings"`
	Recommendations      []string  `json:"recommendations"`
	ShouldChangePassword bool      `json:"should_change_password"`
	GeneratedAt          time.Time `json:"generated_at"`
}
