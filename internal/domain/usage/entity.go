package usage

import "time"

// Record is the persisted counter for the current period.
type Record struct {
	PeriodStart   string `json:"periodStart"` // YYYY-MM-DD
	AnalysisCount int    `json:"analysisCount"`
	Tier          Tier   `json:"tier"`
}

// Check is the answer to "may I analyze now".
type Check struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Tier      Tier      `json:"tier"`
	TierName  string    `json:"tierName"`
	Period    Period    `json:"period"`
	ResetDate time.Time `json:"resetDate"`
	Features  Features  `json:"features"`
}

// Subscription is the locally known subscription state.
type Subscription struct {
	Tier      Tier       `json:"tier"`
	Status    string     `json:"status"` // active, cancelled
	StartedAt time.Time  `json:"startedAt"`
	RenewsAt  *time.Time `json:"renewsAt,omitempty"`
}

const dateLayout = "2006-01-02"

// PeriodStart returns the first day of the period containing now: Monday for
// weekly plans, the 1st for monthly ones.
func PeriodStart(p Period, now time.Time) time.Time {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if p == PeriodWeek {
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		return day.AddDate(0, 0, -offset)
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

// ResetDate is the first day of the next period.
func ResetDate(p Period, start time.Time) time.Time {
	if p == PeriodWeek {
		return start.AddDate(0, 0, 7)
	}
	return start.AddDate(0, 1, 0)
}

func FormatDate(t time.Time) string { return t.Format(dateLayout) }
