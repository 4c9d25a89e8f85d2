package hours

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	hourLayout = "2006-01-02 15"
	// Layout used for naive timestamps in storage, sorts lexically.
	StorageLayout = "2006-01-02 15:04:05"
)

// A DateHour identifies a single hour slot on the naive UTC wall clock.
type DateHour struct {
	Date string
	Hour uint8
}

func (dh DateHour) String() string {
	return fmt.Sprintf("%s %02d", dh.Date, dh.Hour)
}

func (dh DateHour) IsoString() string {
	return fmt.Sprintf("%sT%02d:00:00Z", dh.Date, dh.Hour)
}

func (dh DateHour) StorageString() string {
	return fmt.Sprintf("%s %02d:00:00", dh.Date, dh.Hour)
}

// Time returns the start of the slot. The zero DateHour gives the zero time.
func (dh DateHour) Time() time.Time {
	if dh.IsZero() {
		return time.Time{}
	}
	t, err := time.ParseInLocation(hourLayout, dh.String(), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (dh DateHour) Add(hours int) DateHour {
	t := dh.Time()
	if t.IsZero() {
		return dh
	}
	return FromTime(t.Add(time.Duration(hours) * time.Hour))
}

func (dh DateHour) Sub(hours int) DateHour {
	return dh.Add(-hours)
}

func (dh DateHour) Compare(other DateHour) int {
	if dh == other {
		return 0
	}
	if dh.Date < other.Date {
		return -1
	}
	if dh.Date > other.Date {
		return 1
	}
	if dh.Hour < other.Hour {
		return -1
	}
	return 1
}

func (dh DateHour) Before(other DateHour) bool {
	return dh.Compare(other) < 0
}

func (dh DateHour) IsZero() bool {
	return dh.Date == "" && dh.Hour == 0
}

// FromTime converts t to UTC and truncates it to the hour.
func FromTime(t time.Time) DateHour {
	if t.IsZero() {
		return DateHour{}
	}
	t = t.UTC()
	return DateHour{
		Date: t.Format(dateLayout),
		Hour: uint8(t.Hour()),
	}
}

func FromNow() DateHour {
	return FromTime(time.Now())
}

func FromMidnight() DateHour {
	now := time.Now().UTC()
	return DateHour{
		Date: now.Format(dateLayout),
		Hour: 0,
	}
}

func FromIso(str string) time.Time {
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ParseStorage parses a timestamp written with StorageLayout.
func ParseStorage(str string) (DateHour, error) {
	t, err := time.ParseInLocation(StorageLayout, str, time.UTC)
	if err != nil {
		return DateHour{}, fmt.Errorf("parse slot %q: %w", str, err)
	}
	return FromTime(t), nil
}

// FormatStorage formats any instant as a naive UTC storage timestamp.
func FormatStorage(t time.Time) string {
	return t.UTC().Format(StorageLayout)
}

// StartOfDay returns midnight of t's UTC calendar date.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from start's date up to, not including,
// end's date. It is never negative.
func DaysBetween(start, end time.Time) int {
	from, to := StartOfDay(start), StartOfDay(end)
	if !from.Before(to) {
		return 0
	}
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// CalendarDays returns midnight of every UTC date from start's date through
// end's date, both included.
func CalendarDays(start, end time.Time) []time.Time {
	from, to := StartOfDay(start), StartOfDay(end)
	days := make([]time.Time, 0, DaysBetween(from, to)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
