package limits

import "time"

// Period is a calendar month in a given location.
// End is the last millisecond of the month (23:59:59.999 on its last day).
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodAt returns the calendar month containing t, evaluated in t's location.
func PeriodAt(t time.Time) Period {
	y, m, _ := t.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Millisecond),
	}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.Start.AddDate(0, 1, 0))
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	return PeriodAt(p.Start.AddDate(0, 1, 0))
}
