package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// TimeOfDay is a wall-clock hour and minute ("HH:mm").
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Midnight is the default rollover offset.
var Midnight = TimeOfDay{}

// ParseTimeOfDay parses "HH:mm" (single-digit hours are accepted) and rejects
// values outside 00:00-23:59.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return TimeOfDay{}, ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not HH:mm", s)}
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return TimeOfDay{}, ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not HH:mm", s)}
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// MustTimeOfDay parses s and panics on error. Intended for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate rejects hours or minutes outside a single day.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return ValidationError{Field: "time", Reason: fmt.Sprintf("%02d:%02d is outside 00:00-23:59", t.Hour, t.Minute)}
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Before orders two times of day.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText treats an empty value as midnight, matching records written
// before the refresh time existed.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Midnight
		return nil
	}
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar date without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", s)}
	}
	return DateOf(t), nil
}

// MustDate parses s and panics on error. Intended for constants and tests.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysUntil counts calendar days from d to other; negative when other precedes d.
func (d Date) DaysUntil(other Date) int {
	return int(other.midnightUTC().Sub(d.midnightUTC()) / (24 * time.Hour))
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EffectiveDay converts now into a 1-based day index of a protocol started on
// start. The offset is subtracted from now's wall clock rather than from the
// instant, so the rollover happens at offset local time even on days with a
// DST transition. Callers sample now once per logical operation.
func EffectiveDay(now time.Time, start Date, offset TimeOfDay) int {
	day := DateOf(now)
	if now.Hour()*60+now.Minute() < offset.Hour*60+offset.Minute {
		day = day.AddDays(-1)
	}
	return start.DaysUntil(day) + 1
}
