package domain

import (
	"iter"
	"time"
)

type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = "none"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceNone, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// DefaultOccurrenceCount is the default generation horizon for a recurring
// series: one year of weekly lessons. Callers may override it per series.
const DefaultOccurrenceCount = 52

// Occurrences yields the dates of the generated occurrences that follow the
// seed date, in order. The seed itself is not yielded. Weekly steps are
// exactly seven days; monthly steps advance a cursor one calendar month at a
// time, so end-of-month seeds normalize forward the way time.AddDate does.
// The sequence is finite and can be ranged over more than once. RecurrenceNone
// yields nothing.
func Occurrences(seedDate time.Time, pattern RecurrencePattern, count int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if count <= 0 || pattern == RecurrenceNone {
			return
		}
		cursor := seedDate
		for i := 0; i < count; i++ {
			switch pattern {
			case RecurrenceWeekly:
				cursor = cursor.AddDate(0, 0, 7)
			case RecurrenceMonthly:
				cursor = cursor.AddDate(0, 1, 0)
			default:
				return
			}
			if !yield(cursor) {
				return
			}
		}
	}
}
