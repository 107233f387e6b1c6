// Package caldate provides calendar-date and time-of-day value types that are
// decoded once at the storage boundary. The pgx scanner/valuer methods let the
// types be passed straight to queries and Scan calls, so no handler ever deals
// with driver-specific date or time shapes.
package caldate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	dateLayout      = "2006-01-02"
	microsPerSecond = int64(time.Second / time.Microsecond)
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date, normalising out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Date{}
		return nil
	}
	if v.InfinityModifier != pgtype.Finite {
		return fmt.Errorf("cannot scan infinite date into caldate.Date")
	}
	*d = DateOf(v.Time)
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	if d.IsZero() {
		return pgtype.Date{}, nil
	}
	return pgtype.Date{Time: d.Time(), Valid: true}, nil
}

// TimeOfDay is a wall-clock time without a date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

var timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "03:04 PM", "3:04PM", "03:04PM"}

// ParseTimeOfDay accepts 24h ("14:30", "14:30:00") and 12h ("2:30 PM") forms.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60 && t.Second >= 0 && t.Second < 60
}

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Kitchen renders the time as "3:04 PM".
func (t TimeOfDay) Kitchen() string {
	return time.Date(0, 1, 1, t.Hour, t.Minute, t.Second, 0, time.UTC).Format("3:04 PM")
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScanTime implements pgtype.TimeScanner.
func (t *TimeOfDay) ScanTime(v pgtype.Time) error {
	if !v.Valid {
		*t = TimeOfDay{}
		return nil
	}
	secs := v.Microseconds / microsPerSecond
	*t = TimeOfDay{
		Hour:   int(secs / 3600),
		Minute: int(secs % 3600 / 60),
		Second: int(secs % 60),
	}
	return nil
}

// TimeValue implements pgtype.TimeValuer.
func (t TimeOfDay) TimeValue() (pgtype.Time, error) {
	if !t.valid() {
		return pgtype.Time{}, fmt.Errorf("time of day out of range: %s", t)
	}
	secs := int64(t.Hour*3600 + t.Minute*60 + t.Second)
	return pgtype.Time{Microseconds: secs * microsPerSecond, Valid: true}, nil
}
