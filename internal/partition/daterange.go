package partition

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format accepted on input.
const DateLayout = "2006-01-02"

// ErrInvalidDateRange is returned when a range cannot be constructed.
var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is an inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to UTC midnight and rejects start > end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: start and end dates are required", ErrInvalidDateRange)
	}

	s := truncateDay(start)
	e := truncateDay(end)
	if s.After(e) {
		return DateRange{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange,
			s.Format(DateLayout), e.Format(DateLayout))
	}

	return DateRange{Start: s, End: e}, nil
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidDateRange, start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end date %q: %v", ErrInvalidDateRange, end, err)
	}
	return NewDateRange(s, e)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days is the number of calendar days covered, both ends included.
func (d DateRange) Days() int {
	return int(d.End.Sub(d.Start).Hours()/24) + 1
}

// QueryStart is the first instant of the range.
func (d DateRange) QueryStart() time.Time {
	return d.Start
}

// QueryEnd is the last millisecond of the final day.
func (d DateRange) QueryEnd() time.Time {
	return d.End.Add(24*time.Hour - time.Millisecond)
}

// Contains reports whether t falls on one of the range's days.
func (d DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(d.Start) && t.Before(d.End.Add(24*time.Hour))
}

// Split cuts the range into contiguous chunks of at most threshold days.
// Every chunk but the last is exactly threshold days long.
func (d DateRange) Split(threshold int) []DateRange {
	if threshold <= 0 || d.Days() <= threshold {
		return []DateRange{d}
	}

	var chunks []DateRange
	start := d.Start
	for !start.After(d.End) {
		end := start.AddDate(0, 0, threshold-1)
		if end.After(d.End) {
			end = d.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return chunks
}

func (d DateRange) String() string {
	return d.Start.Format(DateLayout) + "/" + d.End.Format(DateLayout)
}
