package core

import "time"

// MonthPeriod is one calendar month: Start is the first instant of the month
// and End the last represented instant (23:59:59.999). Every transaction
// attributed to the month satisfies Start <= date <= End.
type MonthPeriod struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
	Month string    `json:"month"`
	Year  int       `json:"year"`
}

// CurrentMonthPeriod computes the calendar month containing now, in now's
// location. The clock is injected rather than read ambiently so callers and
// tests control the reference time.
//
// The end boundary is built as "day 0 of the next month", which lets the
// standard library normalize month lengths, leap-year February included.
func CurrentMonthPeriod(now time.Time) MonthPeriod {
	year, month, _ := now.Date()
	loc := now.Location()

	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := time.Date(year, month+1, 0, 23, 59, 59, int(999*time.Millisecond), loc)

	return MonthPeriod{
		Start: start,
		End:   end,
		Month: month.String(),
		Year:  year,
	}
}

// Contains reports whether t falls inside the period, boundaries included.
func (p MonthPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}
