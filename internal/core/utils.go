package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	mdRegex      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	relRegex     = regexp.MustCompile(`^([dwmy])-(\d+)$`)
	weekNumRegex = regexp.MustCompile(`^\d{1,2}$`)
	isoWeekRegex = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
)

// GetTZ returns a *time.Location for the given timezone name.
// Falls back to UTC if the timezone is not found.
func GetTZ(name string) *time.Location {
	if name == "" {
		name = DefaultTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Str("timezone", name).Msg("Timezone not found; falling back to UTC")
		return time.UTC
	}
	return loc
}

// ParseDate parses a YYYY-MM-DD string into a time.Time (date only, at midnight UTC).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(APIDateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// Today returns the calendar date of now in loc, at midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOnly(now.In(loc))
}

// ParseDateSpec returns a concrete date for flexible spec strings.
// Supports:
// 1. today / yesterday
// 2. Exact YYYY-MM-DD
// 3. M/D or MM/DD (most recent past occurrence)
// 4. Relative forms like d-7 (days), w-2 (weeks), m-3 (months), y-1 (years)
func ParseDateSpec(spec string, loc *time.Location) (time.Time, error) {
	return ParseDateSpecAt(spec, time.Now(), loc)
}

// ParseDateSpecAt is ParseDateSpec relative to now.
func ParseDateSpecAt(spec string, now time.Time, loc *time.Location) (time.Time, error) {
	today := Today(now, loc)

	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "today", "":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if t, err := time.Parse(APIDateFmt, spec); err == nil {
		return t, nil
	}

	if matches := mdRegex.FindStringSubmatch(spec); matches != nil {
		month, _ := strconv.Atoi(matches[1])
		day, _ := strconv.Atoi(matches[2])
		target := time.Date(today.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if target.After(today) {
			target = time.Date(today.Year()-1, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
		return target, nil
	}

	if matches := relRegex.FindStringSubmatch(strings.ToLower(spec)); matches != nil {
		unit := matches[1]
		num, _ := strconv.Atoi(matches[2])

		switch unit {
		case "d":
			return today.AddDate(0, 0, -num), nil
		case "w":
			return today.AddDate(0, 0, -num*7), nil
		case "m":
			return today.AddDate(0, -num, 0), nil
		case "y":
			return today.AddDate(-num, 0, 0), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date specification: '%s'", spec)
}

// ParseWeekSpec converts a week spec (N or YYYY-WNN) into (start_date, end_date).
func ParseWeekSpec(spec string) (time.Time, time.Time, error) {
	currentYear := time.Now().Year()

	// 1. Integer week number (assume current year)
	if weekNumRegex.MatchString(spec) {
		weekNum, _ := strconv.Atoi(spec)
		if weekNum < 1 || weekNum > 53 {
			return time.Time{}, time.Time{}, fmt.Errorf("week number out of range (1-53)")
		}
		return weekDates(currentYear, weekNum)
	}

	// 2. YYYY-WNN format
	if matches := isoWeekRegex.FindStringSubmatch(spec); matches != nil {
		year, _ := strconv.Atoi(matches[1])
		weekNum, _ := strconv.Atoi(matches[2])
		if weekNum < 1 || weekNum > 53 {
			return time.Time{}, time.Time{}, fmt.Errorf("week number out of range (1-53) in ISO format")
		}
		return weekDates(year, weekNum)
	}

	return time.Time{}, time.Time{}, fmt.Errorf("invalid week specification format: '%s'", spec)
}

// weekDates returns the start (Monday) and end (Sunday) dates for a given ISO week.
func weekDates(year, week int) (time.Time, time.Time, error) {
	// January 4th is always in week 1 per ISO 8601
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	mondayWeek1 := jan4.AddDate(0, 0, -(weekday - 1))
	startDate := mondayWeek1.AddDate(0, 0, (week-1)*7)
	endDate := startDate.AddDate(0, 0, 6)
	return startDate, endDate, nil
}

// GetDateRange returns the (first, last) calendar dates of a named period.
// Supported periods: today, yesterday, this-week, last-week, this-month, last-month.
func GetDateRange(period string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := Today(now, loc)

	mondayOf := func(d time.Time) time.Time {
		weekday := int(d.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return d.AddDate(0, 0, -(weekday - 1))
	}

	switch period {
	case "today":
		return today, today, nil

	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d, d, nil

	case "this-week":
		start := mondayOf(today)
		return start, start.AddDate(0, 0, 6), nil

	case "last-week":
		start := mondayOf(today).AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6), nil

	case "this-month":
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, -1), nil

	case "last-month":
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, -1), nil
	}

	return time.Time{}, time.Time{}, fmt.Errorf("unknown period: %s", period)
}

// AddDays shifts an ISO date string by n days.
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(d.AddDate(0, 0, n)), nil
}

// DateOf returns the ISO calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return FormatDate(t.In(loc))
}

// DaysInRange lists every date from start to end inclusive.
func DaysInRange(start, end time.Time) []time.Time {
	days := make([]time.Time, 0)
	for d := DateOnly(start); !d.After(DateOnly(end)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DateOnly returns a time.Time with only the date portion (midnight UTC).
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(APIDateFmt)
}
