package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day expressed in minutes past midnight.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60
)

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" and "HH:MM:SS"; seconds are ignored.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add returns c shifted by the given number of minutes. The result is not wrapped.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

// Valid reports whether c is within [00:00, 24:00].
func (c Clock) Valid() bool { return c >= Midnight && c <= EndOfDay }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// On anchors the clock to the given calendar date.
func (c Clock) On(date time.Time) time.Time {
	return DateOf(date).Add(time.Duration(c) * time.Minute)
}

// ClockOf returns the time of day of t in minutes, dropping seconds.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts lower or mixed case English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}
