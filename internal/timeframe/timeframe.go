// Package timeframe turns the dashboard's period selectors into concrete UTC
// time windows and builds zero-filled daily series over them.
package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the storage and wire format of calendar dates
const DateLayout = "2006-01-02"

// ErrInvalidPeriod is returned for unknown periods and malformed custom ranges.
var ErrInvalidPeriod = errors.New("invalid period")

// Period names accepted by ParsePeriod
type Period string

const (
	PeriodToday  Period = "today"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodCustom Period = "custom"
	PeriodAll    Period = "all"
)

// DateStat is one point of a daily series
type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider reads the system clock in UTC
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// TimeFrame is the half-open UTC window [From, To)
type TimeFrame struct {
	From  time.Time
	To    time.Time
	Label Period
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ISOWeekStart returns the Monday 00:00 UTC of the ISO week containing t.
func ISOWeekStart(t time.Time) time.Time {
	day := DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// ParsePeriod resolves a period selector against now. week and month are the
// last 7 and 30 days including today; custom takes an inclusive YYYY-MM-DD range;
// all starts at the Unix epoch. An empty period means week.
func ParsePeriod(period, startDate, endDate string, now time.Time) (*TimeFrame, error) {
	today := DayStart(now)
	tomorrow := today.AddDate(0, 0, 1)

	switch Period(period) {
	case PeriodToday:
		return &TimeFrame{From: today, To: tomorrow, Label: PeriodToday}, nil
	case PeriodWeek, "":
		return &TimeFrame{From: today.AddDate(0, 0, -6), To: tomorrow, Label: PeriodWeek}, nil
	case PeriodMonth:
		return &TimeFrame{From: today.AddDate(0, 0, -29), To: tomorrow, Label: PeriodMonth}, nil
	case PeriodAll:
		return &TimeFrame{From: time.Unix(0, 0).UTC(), To: tomorrow, Label: PeriodAll}, nil
	case PeriodCustom:
		return parseCustom(startDate, endDate)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

func parseCustom(startDate, endDate string) (*TimeFrame, error) {
	if startDate == "" || endDate == "" {
		return nil, fmt.Errorf("%w: custom period needs startDate and endDate", ErrInvalidPeriod)
	}

	from, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad startDate %q", ErrInvalidPeriod, startDate)
	}
	to, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endDate %q", ErrInvalidPeriod, endDate)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: endDate before startDate", ErrInvalidPeriod)
	}

	return &TimeFrame{From: from, To: to.AddDate(0, 0, 1), Label: PeriodCustom}, nil
}

// Contains reports whether t falls inside the window.
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && t.Before(tf.To)
}

// Days lists the calendar dates covered by the window.
func (tf *TimeFrame) Days() []string {
	return daysBetween(tf.From, tf.To)
}

// BuildDailySeries zero-fills points over every day of the window. For the
// all-time window the series starts at the earliest point instead of the epoch,
// and is empty when there are no points.
func (tf *TimeFrame) BuildDailySeries(points []DateStat) []DateStat {
	counts := make(map[string]int, len(points))
	first := ""
	for _, p := range points {
		counts[p.Date] += p.Count
		if first == "" || p.Date < first {
			first = p.Date
		}
	}

	from := tf.From
	if tf.Label == PeriodAll {
		if first == "" {
			return []DateStat{}
		}
		parsed, err := time.ParseInLocation(DateLayout, first, time.UTC)
		if err == nil {
			from = parsed
		}
	}

	days := daysBetween(from, tf.To)
	series := make([]DateStat, len(days))
	for i, day := range days {
		series[i] = DateStat{Date: day, Count: counts[day]}
	}
	return series
}

func daysBetween(from, to time.Time) []string {
	var days []string
	for day := DayStart(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(DateLayout))
	}
	return days
}
