package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date, backed by a Postgres TIME
// column. The date portion is pinned to 0001-01-01 UTC so values compare
// consistently.
type TimeOfDay struct {
	t time.Time
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{t: time.Date(1, 1, 1, hour, minute, 0, 0, time.UTC)}
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var td TimeOfDay
	return td, td.parse(s)
}

func (td *TimeOfDay) parse(s string) error {
	s = strings.TrimSpace(s)
	if len(s) == 5 {
		s += ":00"
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return fmt.Errorf("invalid time of day %q", s)
	}
	td.t = time.Date(1, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return nil
}

func (td TimeOfDay) IsZero() bool         { return td.t.IsZero() }
func (td TimeOfDay) Before(o TimeOfDay) bool { return td.t.Before(o.t) }
func (td TimeOfDay) Equal(o TimeOfDay) bool  { return td.t.Equal(o.t) }

func (td TimeOfDay) String() string {
	if td.t.IsZero() {
		return "00:00:00"
	}
	return td.t.Format("15:04:05")
}

func (td *TimeOfDay) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		td.t = time.Date(1, 1, 1, x.Hour(), x.Minute(), x.Second(), 0, time.UTC)
		return nil
	case []byte:
		return td.parse(string(x))
	case string:
		return td.parse(x)
	case nil:
		td.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("timeofday: unsupported Scan type %T", v)
	}
}

func (td TimeOfDay) Value() (driver.Value, error) {
	return td.String(), nil
}

func (td TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(td.String())
}

func (td *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return td.parse(s)
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) share any point. Touching intervals (aEnd == bStart) do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
