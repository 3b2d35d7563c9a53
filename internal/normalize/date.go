package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventfeed/internal/model"
)

var (
	ErrUnrecognizedDateFormat = errors.New("normalize: unrecognized date format")
	ErrInvertedDateRange      = errors.New("normalize: date range ends before it starts")
	ErrWeekdayMismatch        = errors.New("normalize: weekday does not match date")
)

// Building blocks of the listing date grammars. Weekday and month tokens are
// capitalized three-letter abbreviations, years always have four digits.
const (
	dowPat  = `([A-Z][a-z][a-z])`
	dayPat  = `([0-9][0-9]?)`
	monPat  = `([A-Z][a-z][a-z])`
	yearPat = `([0-9][0-9][0-9][0-9])`
)

// dayRef is one side of a date range as written in the source text.
type dayRef struct {
	dow, day, mon, year string
}

type dateGrammar struct {
	name    string
	re      *regexp.Regexp
	extract func(m []string) (start, end dayRef)

	// rollover allows the start to fall in the year before the stated one
	// ("Fri 29 Dec - Tue 2 Jan 2024").
	rollover bool
}

// dateGrammars is evaluated in order; the first match wins.
var dateGrammars = []dateGrammar{
	{
		name: "single day",
		re:   regexp.MustCompile(`^` + dowPat + ` ` + dayPat + ` ` + monPat + ` ` + yearPat + `$`),
		extract: func(m []string) (dayRef, dayRef) {
			d := dayRef{dow: m[1], day: m[2], mon: m[3], year: m[4]}
			return d, d
		},
	},
	{
		name: "single month",
		re: regexp.MustCompile(`^` + dowPat + ` ` + dayPat + ` - ` +
			dowPat + ` ` + dayPat + ` ` + monPat + ` ` + yearPat + `$`),
		extract: func(m []string) (dayRef, dayRef) {
			return dayRef{dow: m[1], day: m[2], mon: m[5], year: m[6]},
				dayRef{dow: m[3], day: m[4], mon: m[5], year: m[6]}
		},
	},
	{
		name: "cross month",
		re: regexp.MustCompile(`^` + dowPat + ` ` + dayPat + ` ` + monPat + ` - ` +
			dowPat + ` ` + dayPat + ` ` + monPat + ` ` + yearPat + `$`),
		extract: func(m []string) (dayRef, dayRef) {
			return dayRef{dow: m[1], day: m[2], mon: m[3], year: m[7]},
				dayRef{dow: m[4], day: m[5], mon: m[6], year: m[7]}
		},
		rollover: true,
	},
	{
		name: "cross year",
		re: regexp.MustCompile(`^` + dowPat + ` ` + dayPat + ` ` + monPat + ` ` + yearPat + ` - ` +
			dowPat + ` ` + dayPat + ` ` + monPat + ` ` + yearPat + `$`),
		extract: func(m []string) (dayRef, dayRef) {
			return dayRef{dow: m[1], day: m[2], mon: m[3], year: m[4]},
				dayRef{dow: m[5], day: m[6], mon: m[7], year: m[8]}
		},
	},
}

var monthAbbrev = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

var weekdayAbbrev = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
	"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday,
	"Sat": time.Saturday,
}

// DateParser turns listing date texts into date ranges.
type DateParser struct {
	// Location of the returned midnights. If nil, time.Local is used.
	Location *time.Location

	// StrictWeekday rejects texts whose weekday tokens disagree with the
	// computed dates. By default weekday tokens are skipped.
	StrictWeekday bool
}

// ParseDateRange classifies text against the supported grammars and returns
// the inclusive range it describes. The result always has Start <= End.
func (p DateParser) ParseDateRange(text string) (model.DateRange, error) {
	text = strings.TrimSpace(text)

	for _, g := range dateGrammars {
		m := g.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		startRef, endRef := g.extract(m)

		start, err := p.resolve(startRef, 0)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedDateFormat, text, err)
		}
		end, err := p.resolve(endRef, 0)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedDateFormat, text, err)
		}

		// Only a start month later in the year than the end month can
		// belong to the previous year.
		if start.After(end) && g.rollover && start.Month() > end.Month() {
			start, err = p.resolve(startRef, -1)
			if err != nil {
				return model.DateRange{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedDateFormat, text, err)
			}
		}
		if start.After(end) {
			return model.DateRange{}, fmt.Errorf("%w: %q", ErrInvertedDateRange, text)
		}

		if p.StrictWeekday {
			if err := checkWeekday(startRef, start); err != nil {
				return model.DateRange{}, fmt.Errorf("%w: %q", err, text)
			}
			if err := checkWeekday(endRef, end); err != nil {
				return model.DateRange{}, fmt.Errorf("%w: %q", err, text)
			}
		}

		return model.DateRange{Start: start, End: end}, nil
	}

	return model.DateRange{}, fmt.Errorf("%w: %q", ErrUnrecognizedDateFormat, text)
}

// resolve converts ref into a local midnight, shifting the year by yearShift.
func (p DateParser) resolve(ref dayRef, yearShift int) (time.Time, error) {
	month, ok := monthAbbrev[ref.mon]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", ref.mon)
	}
	year, err := strconv.Atoi(ref.year)
	if err != nil {
		return time.Time{}, err
	}
	year += yearShift
	day, err := strconv.Atoi(ref.day)
	if err != nil {
		return time.Time{}, err
	}
	if day < 1 || day > daysIn(month, year) {
		return time.Time{}, fmt.Errorf("day %d out of range for %s %d", day, month, year)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, p.location()), nil
}

func (p DateParser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func checkWeekday(ref dayRef, t time.Time) error {
	wd, ok := weekdayAbbrev[ref.dow]
	if !ok || wd != t.Weekday() {
		return fmt.Errorf("%w: %s %s %s %s is a %s", ErrWeekdayMismatch, ref.dow, ref.day, ref.mon, ref.year, t.Weekday())
	}
	return nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
