// File: internal/renewal/eligibility.go
package renewal

import "time"

// TodayJST returns the calendar date of the given instant in JST.
func TodayJST(now time.Time) time.Time {
	y, m, d := now.In(JST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, JST)
}

// Eligible reports whether renewal may be attempted: the window opens
// exactly one day before expiry, so eligible iff today >= expiry - 1 day.
// Both arguments are compared as calendar dates; the zones they carry are
// ignored beyond their date components.
func Eligible(expiry, today time.Time) bool {
	e := dateOnly(expiry)
	t := dateOnly(today)
	return !t.Before(e.AddDate(0, 0, -1))
}

func dateOnly(v time.Time) time.Time {
	y, m, d := v.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
