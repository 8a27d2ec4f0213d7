package domain

import (
	"testing"
	"time"
)

func collectDates(seed time.Time, pattern RecurrencePattern, count int) []time.Time {
	var out []time.Time
	for d := range Occurrences(seed, pattern, count) {
		out = append(out, d)
	}
	return out
}

func TestOccurrencesWeekly(t *testing.T) {
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	dates := collectDates(seed, RecurrenceWeekly, DefaultOccurrenceCount)
	if len(dates) != 52 {
		t.Fatalf("len(dates) = %d, want 52", len(dates))
	}
	if !dates[0].Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first occurrence = %v, want 2024-01-08", dates[0])
	}
	if !dates[1].Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("second occurrence = %v, want 2024-01-15", dates[1])
	}
	if !dates[51].Equal(seed.AddDate(0, 0, 52*7)) {
		t.Fatalf("last occurrence = %v, want %v", dates[51], seed.AddDate(0, 0, 52*7))
	}

	for i := 1; i < len(dates); i++ {
		if dates[i].Sub(dates[i-1]) != 7*24*time.Hour {
			t.Fatalf("gap between %v and %v is not one week", dates[i-1], dates[i])
		}
	}
}

func TestOccurrencesMonthly(t *testing.T) {
	seed := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	dates := collectDates(seed, RecurrenceMonthly, 3)
	want := []time.Time{
		time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	}
	if len(dates) != len(want) {
		t.Fatalf("len(dates) = %d, want %d", len(dates), len(want))
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("dates[%d] = %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestOccurrencesMonthlyEndOfMonthNormalizes(t *testing.T) {
	// A Jan 31 seed has no Feb 31; the cursor normalizes forward and stays
	// there, the way repeated AddDate(0, 1, 0) behaves.
	seed := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	dates := collectDates(seed, RecurrenceMonthly, 2)
	if !dates[0].Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dates[0] = %v, want 2025-03-03", dates[0])
	}
	if !dates[1].Equal(time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dates[1] = %v, want 2025-04-03", dates[1])
	}
}

func TestOccurrencesRestartable(t *testing.T) {
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seq := Occurrences(seed, RecurrenceWeekly, 4)

	first := make([]time.Time, 0, 4)
	for d := range seq {
		first = append(first, d)
	}
	second := make([]time.Time, 0, 4)
	for d := range seq {
		second = append(second, d)
	}

	if len(first) != 4 || len(second) != 4 {
		t.Fatalf("lens = %d, %d, want 4, 4", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("second pass diverged at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestOccurrencesEarlyBreak(t *testing.T) {
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	n := 0
	for range Occurrences(seed, RecurrenceWeekly, 52) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
}

func TestOccurrencesNoneAndZeroCount(t *testing.T) {
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := collectDates(seed, RecurrenceNone, 52); len(got) != 0 {
		t.Fatalf("RecurrenceNone produced %d dates, want 0", len(got))
	}
	if got := collectDates(seed, RecurrenceWeekly, 0); len(got) != 0 {
		t.Fatalf("zero count produced %d dates, want 0", len(got))
	}
}
