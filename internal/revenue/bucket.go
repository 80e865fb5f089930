package revenue

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Granularity is the width of a dashboard bucket.
type Granularity string

// Supported granularities.
const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Mode is the way the reporting period was requested.
type Mode string

// Period modes.
const (
	ModeYear   Mode = "year"
	ModeRange  Mode = "range"
	ModeRecent Mode = "recent"
)

// DefaultRecentMonths is the window of the implicit "last N months" mode.
const DefaultRecentMonths = 12

// MaxRecentMonths bounds the months parameter.
const MaxRecentMonths = 120

// ParseDate reads YYYY-MM-DD, or YYYY-MM as the first day of that month.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("2006-01") {
		return time.Parse("2006-01", s)
	}
	return time.Parse(time.DateOnly, s)
}

// ParseEndDate reads the inclusive end of a range. A YYYY-MM end covers the
// whole month and resolves to its last day.
func ParseEndDate(s string) (time.Time, error) {
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if len(strings.TrimSpace(s)) == len("2006-01") {
		t = t.AddDate(0, 1, -1)
	}
	return t, nil
}

// DetermineGranularity picks daily for spans up to 7 days, weekly up to 60
// and monthly otherwise. Unparsable input falls back to monthly.
func DetermineGranularity(start, end string) Granularity {
	s, err := ParseDate(start)
	if err != nil {
		return Monthly
	}
	e, err := ParseEndDate(end)
	if err != nil {
		return Monthly
	}
	return granularityFor(s, e)
}

func granularityFor(s, e time.Time) Granularity {
	days := int(math.Floor(e.Sub(s).Hours() / 24))
	switch {
	case days <= 7:
		return Daily
	case days <= 60:
		return Weekly
	default:
		return Monthly
	}
}

// KeyFor returns the bucket key of t.
func KeyFor(t time.Time, g Granularity) string {
	switch g {
	case Daily:
		return t.Format(time.DateOnly)
	case Weekly:
		return fmt.Sprintf("%d-W%02d", t.Year(), weekOfYear(t))
	default:
		return t.Format("2006-01")
	}
}

// weekOfYear numbers Sunday-start weeks, week 1 containing January 1st.
func weekOfYear(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	dayOfYear := t.YearDay() - 1
	return int(math.Ceil(float64(dayOfYear+int(jan1.Weekday())+1) / 7))
}

// Label renders a bucket key for display: MM/DD, NN주차 or the key itself.
func Label(key string, g Granularity) string {
	switch g {
	case Daily:
		parts := strings.Split(key, "-")
		if len(parts) == 3 {
			return parts[1] + "/" + parts[2]
		}
	case Weekly:
		if _, week, ok := strings.Cut(key, "-W"); ok {
			return week + "주차"
		}
	}
	return key
}

// KeysBetween lists every bucket key from start to end inclusive.
func KeysBetween(start, end time.Time, g Granularity) []string {
	var keys []string
	switch g {
	case Daily:
		for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
			keys = append(keys, KeyFor(cur, g))
		}
	case Weekly:
		seen := make(map[string]struct{})
		for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
			key := KeyFor(cur, g)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	default:
		cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		for ; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
			keys = append(keys, KeyFor(cur, g))
		}
	}
	return keys
}

// Period is the resolved reporting window of a dashboard request.
type Period struct {
	Mode          Mode
	Granularity   Granularity
	Keys          []string
	InstalledFrom *time.Time
	InstalledTo   *time.Time
}

// Ascending reports whether buckets are emitted oldest first. The implicit
// recent mode lists the newest bucket first.
func (p Period) Ascending() bool {
	return p.Mode != ModeRecent
}

// ResolvePeriod turns the period parameters of q into bucket keys.
// Year wins over an explicit range, which wins over the recent mode.
func ResolvePeriod(q Query, now time.Time) Period {
	switch {
	case q.Year > 0:
		keys := make([]string, 0, 12)
		for m := 1; m <= 12; m++ {
			keys = append(keys, fmt.Sprintf("%d-%02d", q.Year, m))
		}
		return Period{Mode: ModeYear, Granularity: Monthly, Keys: keys}
	case q.StartDate != "" && q.EndDate != "":
		start, errStart := ParseDate(q.StartDate)
		end, errEnd := ParseEndDate(q.EndDate)
		if errStart != nil || errEnd != nil {
			return Period{Mode: ModeRange, Granularity: Monthly}
		}
		g := granularityFor(start, end)
		return Period{
			Mode:          ModeRange,
			Granularity:   g,
			Keys:          KeysBetween(start, end, g),
			InstalledFrom: &start,
			InstalledTo:   &end,
		}
	default:
		months := q.Months
		if months <= 0 {
			months = DefaultRecentMonths
		}
		if months > MaxRecentMonths {
			months = MaxRecentMonths
		}
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		keys := make([]string, 0, months)
		for i := months - 1; i >= 0; i-- {
			keys = append(keys, KeyFor(first.AddDate(0, -i, 0), Monthly))
		}
		return Period{Mode: ModeRecent, Granularity: Monthly, Keys: keys}
	}
}
