package risk

// Score thresholds for the overall level. Exact boundaries: 40 is critical,
// 25 is high, 10 is medium.
const (
	scoreCritical = 40
	scoreHigh     = 25
	scoreMedium   = 10
)

// scoreFindings sums int(level)*10 over all findings.
func scoreFindings(findings []Finding) int {
	var score int
	for _, f := range findings {
		score += int(f.Level) * 10
	}
	return score
}

// levelForScore maps a score onto the overall level.
func levelForScore(score int) Level {
	switch {
	case score >= scoreCritical:
		return LevelCritical
	case score >= scoreHigh:
		return LevelHigh
	case score >= scoreMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// recommendationsFor produces the ordered advice list for a finding set and
// its overall level.
func recommendationsFor(findings []Finding, overall Level) []string {
	var out []string
	if overall >= LevelMedium {
		out = append(out,
			"Change your password immediately.",
			"Enable two-factor authentication on your account.",
		)
	}
	for _, f := range findings {
		switch f.Category {
		case CategoryMultipleFailedLogins:
			out = append(out, "Repeated failed logins detected; monitor for brute-force attempts and consider locking the account.")
		case CategoryConcurrentSessions:
			out = append(out, "Overlapping sessions from different regions detected; sign out of all devices.")
		case CategoryNewIPAddress, CategoryNewDevice:
			out = append(out, "Review the list of recently used devices and network addresses.")
		case CategorySuspiciousLocation, CategoryRapidGeographicMovement:
			out = append(out, "Verify that recent login locations match your actual travel.")
		}
	}
	if overall == LevelCritical {
		out = append(out,
			"Escalate to a security administrator for review.",
			"Consider temporarily suspending the account until the activity is explained.",
		)
	}
	if len(out) == 0 {
		out = append(out,
			"No significant anomalies detected.",
			"Keep following password and device hygiene best practices.",
		)
	}
	return dedupeStrings(out)
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
