package risk

import (
	"fmt"
	"sort"
	"time"

	"tenantcore.org/internal/audit"
)

// Detection thresholds. These heuristics are deliberately coarse proxies and
// must not be "improved" silently: downstream tests and operator runbooks
// assume the literal behavior.
const (
	failedLoginThreshold    = 5
	failedLoginCritical     = 10
	unusualTimeThreshold    = 3
	nightStartHour          = 6
	nightEndHour            = 22
	concurrentWindow        = 30 * time.Minute
	rapidMovementGap        = 4 * time.Hour
	newIPHighCount          = 3
	newDeviceHighCount      = 2
	suspiciousRegionHighCnt = 2
)

// detectNewIPs reports addresses present in the recent window but absent
// from the trailing historical set. Empty addresses never count as new.
func detectNewIPs(history []audit.LoginAttempt, historicalIPs []string) *Finding {
	known := stringSet(historicalIPs)
	newSeen := make(map[string]struct{})
	var first, last time.Time
	for _, a := range history {
		if a.IP == "" {
			continue
		}
		if _, ok := known[a.IP]; ok {
			continue
		}
		if _, ok := newSeen[a.IP]; !ok {
			newSeen[a.IP] = struct{}{}
		}
		first, last = expandRange(first, last, a.LoginAt)
	}
	if len(newSeen) == 0 {
		return nil
	}
	level := LevelMedium
	if len(newSeen) > newIPHighCount {
		level = LevelHigh
	}
	return &Finding{
		Category:    CategoryNewIPAddress,
		Level:       level,
		Description: fmt.Sprintf("logins from %d address(es) not seen in the previous 90 days", len(newSeen)),
		Details:     map[string]any{"new_ips": setToSlice(newSeen)},
		FirstSeen:   first,
		LastSeen:    last,
		Count:       len(newSeen),
	}
}

// detectSuspiciousLocations flags regions seen exactly once in the window.
// A region seen twice is treated as established even on day one; that is the
// documented simplification, not a bug.
func detectSuspiciousLocations(history []audit.LoginAttempt) *Finding {
	counts := make(map[string]int)
	firstAt := make(map[string]time.Time)
	for _, a := range history {
		if a.Region == "" {
			continue
		}
		counts[a.Region]++
		if _, ok := firstAt[a.Region]; !ok || a.LoginAt.Before(firstAt[a.Region]) {
			firstAt[a.Region] = a.LoginAt
		}
	}
	var suspicious []string
	var first, last time.Time
	for region, n := range counts {
		if n != 1 {
			continue
		}
		suspicious = append(suspicious, region)
		first, last = expandRange(first, last, firstAt[region])
	}
	sort.Strings(suspicious)
	if len(suspicious) == 0 {
		return nil
	}
	level := LevelMedium
	if len(suspicious) > suspiciousRegionHighCnt {
		level = LevelHigh
	}
	return &Finding{
		Category:    CategorySuspiciousLocation,
		Level:       level,
		Description: fmt.Sprintf("single login from %d region(s) with no established history", len(suspicious)),
		Details:     map[string]any{"regions": suspicious},
		FirstSeen:   first,
		LastSeen:    last,
		Count:       len(suspicious),
	}
}

// detectFailedLogins flags brute-force pressure once failures reach the
// threshold.
func detectFailedLogins(history []audit.LoginAttempt) *Finding {
	var count int
	var first, last time.Time
	for _, a := range history {
		if a.Success {
			continue
		}
		count++
		first, last = expandRange(first, last, a.LoginAt)
	}
	if count < failedLoginThreshold {
		return nil
	}
	level := LevelHigh
	if count >= failedLoginCritical {
		level = LevelCritical
	}
	return &Finding{
		Category:    CategoryMultipleFailedLogins,
		Level:       level,
		Description: fmt.Sprintf("%d failed login attempts in the analysis window", count),
		FirstSeen:   first,
		LastSeen:    last,
		Count:       count,
	}
}

// detectUnusualTimes flags repeated logins outside 06:00–22:00 UTC.
func detectUnusualTimes(history []audit.LoginAttempt) *Finding {
	var count int
	var first, last time.Time
	for _, a := range history {
		hour := a.LoginAt.UTC().Hour()
		if hour >= nightStartHour && hour <= nightEndHour {
			continue
		}
		count++
		first, last = expandRange(first, last, a.LoginAt)
	}
	if count < unusualTimeThreshold {
		return nil
	}
	return &Finding{
		Category:    CategoryUnusualLoginTime,
		Level:       LevelMedium,
		Description: fmt.Sprintf("%d logins during unusual hours (22:00–06:00 UTC)", count),
		FirstSeen:   first,
		LastSeen:    last,
		Count:       count,
	}
}

// detectNewDevices applies the new-vs-historical set algorithm to the
// browser string instead of the address.
func detectNewDevices(history []audit.LoginAttempt, historicalBrowsers []string) *Finding {
	known := stringSet(historicalBrowsers)
	newSeen := make(map[string]struct{})
	var first, last time.Time
	for _, a := range history {
		if a.Browser == "" {
			continue
		}
		if _, ok := known[a.Browser]; ok {
			continue
		}
		if _, ok := newSeen[a.Browser]; !ok {
			newSeen[a.Browser] = struct{}{}
		}
		first, last = expandRange(first, last, a.LoginAt)
	}
	if len(newSeen) == 0 {
		return nil
	}
	level := LevelMedium
	if len(newSeen) > newDeviceHighCount {
		level = LevelHigh
	}
	return &Finding{
		Category:    CategoryNewDevice,
		Level:       level,
		Description: fmt.Sprintf("logins from %d device(s) not seen in the previous 90 days", len(newSeen)),
		Details:     map[string]any{"new_devices": setToSlice(newSeen)},
		FirstSeen:   first,
		LastSeen:    last,
		Count:       len(newSeen),
	}
}

// detectConcurrentSessions records an event for every successful login whose
// ±30-minute neighborhood contains at least two successful logins spanning
// at least two distinct non-empty regions.
func detectConcurrentSessions(history []audit.LoginAttempt) *Finding {
	successes := successfulAttempts(history)
	var events []time.Time
	for _, anchor := range successes {
		regions := make(map[string]struct{})
		var within int
		for _, other := range successes {
			gap := other.LoginAt.Sub(anchor.LoginAt)
			if gap < -concurrentWindow || gap > concurrentWindow {
				continue
			}
			within++
			if other.Region != "" {
				regions[other.Region] = struct{}{}
			}
		}
		if within >= 2 && len(regions) >= 2 {
			events = append(events, anchor.LoginAt)
		}
	}
	if len(events) == 0 {
		return nil
	}
	first, last := timeRange(events)
	return &Finding{
		Category:    CategoryConcurrentSessions,
		Level:       LevelHigh,
		Description: fmt.Sprintf("%d login(s) overlapping sessions from different regions", len(events)),
		FirstSeen:   first,
		LastSeen:    last,
		Count:       len(events),
	}
}

// detectRapidMovement walks successful region-tagged logins in time order and
// records adjacent different-region pairs closer than four hours. This is a
// proxy for physically impossible travel; no geodesic distance is computed.
func detectRapidMovement(history []audit.LoginAttempt) *Finding {
	var tagged []audit.LoginAttempt
	for _, a := range successfulAttempts(history) {
		if a.Region != "" {
			tagged = append(tagged, a)
		}
	}
	var events []time.Time
	for i := 1; i < len(tagged); i++ {
		prev, cur := tagged[i-1], tagged[i]
		if prev.Region == cur.Region {
			continue
		}
		if cur.LoginAt.Sub(prev.LoginAt) < rapidMovementGap {
			events = append(events, cur.LoginAt)
		}
	}
	if len(events) == 0 {
		return nil
	}
	first, last := timeRange(events)
	return &Finding{
		Category:    CategoryRapidGeographicMovement,
		Level:       LevelHigh,
		Description: fmt.Sprintf("%d region change(s) faster than plausible travel", len(events)),
		FirstSeen:   first,
		LastSeen:    last,
		Count:       len(events),
	}
}

func successfulAttempts(history []audit.LoginAttempt) []audit.LoginAttempt {
	var out []audit.LoginAttempt
	for _, a := range history {
		if a.Success {
			out = append(out, a)
		}
	}
	return out
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func expandRange(first, last, t time.Time) (time.Time, time.Time) {
	if first.IsZero() || t.Before(first) {
		first = t
	}
	if last.IsZero() || t.After(last) {
		last = t
	}
	return first, last
}

func timeRange(ts []time.Time) (time.Time, time.Time) {
	var first, last time.Time
	for _, t := range ts {
		first, last = expandRange(first, last, t)
	}
	return first, last
}
