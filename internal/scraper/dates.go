package scraper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedDate is returned for date text outside the "D MONTHNAME YYYY, HH:MM" grammar.
var ErrMalformedDate = errors.New("malformed article date")

// polishMonths maps genitive month names, as printed under articles, to months.
var polishMonths = map[string]time.Month{
	"stycznia":     time.January,
	"lutego":       time.February,
	"marca":        time.March,
	"kwietnia":     time.April,
	"maja":         time.May,
	"czerwca":      time.June,
	"lipca":        time.July,
	"sierpnia":     time.August,
	"września":     time.September,
	"października": time.October,
	"listopada":    time.November,
	"grudnia":      time.December,
}

// ParseDate turns "24 LISTOPADA 2025, 20:16" into epoch milliseconds in loc.
// Month names are matched case-insensitively.
func ParseDate(text string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}

	halves := strings.Split(text, ",")
	if len(halves) != 2 {
		return 0, fmt.Errorf("%w: %q: expected one comma", ErrMalformedDate, text)
	}

	dateParts := strings.Fields(halves[0])
	if len(dateParts) != 3 {
		return 0, fmt.Errorf("%w: %q: expected day, month and year", ErrMalformedDate, text)
	}
	clock := strings.Split(strings.TrimSpace(halves[1]), ":")
	if len(clock) != 2 {
		return 0, fmt.Errorf("%w: %q: expected HH:MM", ErrMalformedDate, text)
	}

	day, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: bad day", ErrMalformedDate, text)
	}
	month, ok := polishMonths[strings.ToLower(dateParts[1])]
	if !ok {
		return 0, fmt.Errorf("%w: %q: unknown month %q", ErrMalformedDate, text, dateParts[1])
	}
	year, err := strconv.Atoi(dateParts[2])
	if err != nil || year < 1970 {
		return 0, fmt.Errorf("%w: %q: bad year", ErrMalformedDate, text)
	}
	hour, err := strconv.Atoi(clock[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q: bad hour", ErrMalformedDate, text)
	}
	minute, err := strconv.Atoi(clock[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q: bad minute", ErrMalformedDate, text)
	}
	if day < 1 || day > daysIn(month, year) {
		return 0, fmt.Errorf("%w: %q: bad day", ErrMalformedDate, text)
	}

	return time.Date(year, month, day, hour, minute, 0, 0, loc).UnixMilli(), nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
