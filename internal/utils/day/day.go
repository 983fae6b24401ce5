// Package day derives the canonical UTC calendar day used for quotas and streaks.
package day

import "time"

const layout = "2006-01-02"

// Of returns the UTC calendar day of t as YYYY-MM-DD.
func Of(t time.Time) string {
	return t.UTC().Format(layout)
}

// Yesterday returns the UTC calendar day before t's.
func Yesterday(t time.Time) string {
	return t.UTC().AddDate(0, 0, -1).Format(layout)
}
