package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"eventfeed/internal/model"
)

const instanceKeyLayout = "20060102T150405"

// Metadata is the descriptive part of a listing row.
type Metadata struct {
	Heading     string
	Description string
	Address     string
	ExtraInfo   string
	URL         string
}

// MetadataFromRow picks the descriptive fields out of a raw row.
func MetadataFromRow(row model.RawRow) Metadata {
	return Metadata{
		Heading:     row.Title,
		Description: row.Description,
		Address:     row.Address,
		ExtraInfo:   row.ExtraInfo,
		URL:         row.URL,
	}
}

// Expander turns one parsed event into its concrete occurrences.
type Expander struct {
	Schema Schema

	// Location is the wall-clock zone of all occurrences. If nil, time.Local
	// is used.
	Location *time.Location
}

// Expand emits, for every day of rng in order, one occurrence per window.
// All occurrences share the ID derived from the assembled title and URL.
//
// A range with Start after End is a caller bug and is rejected before any
// iteration happens.
func (e Expander) Expand(rng model.DateRange, windows []model.TimeWindow, meta Metadata) ([]model.Occurrence, error) {
	if rng.End.Before(rng.Start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvertedDateRange,
			rng.Start.Format(time.DateOnly), rng.End.Format(time.DateOnly))
	}
	if len(windows) == 0 {
		windows = []model.TimeWindow{{AllDay: true}}
	}

	days, err := e.days(rng)
	if err != nil {
		return nil, err
	}

	title := AssembleTitle(meta)
	url := e.NormalizeURL(meta.URL)
	id := AssignID(title, url)

	out := make([]model.Occurrence, 0, len(days)*len(windows))
	for _, day := range days {
		for _, w := range windows {
			out = append(out, makeOccurrence(id, title, url, day, w))
		}
	}
	return out, nil
}

// days enumerates the local midnights covered by rng, both ends inclusive.
func (e Expander) days(rng model.DateRange) ([]time.Time, error) {
	loc := e.location()
	start := midnight(rng.Start, loc)
	end := midnight(rng.End, loc)
	lastSecond := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start,
		Until:   lastSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("normalize: daily rule: %w", err)
	}

	all := r.All()
	if want := (model.DateRange{Start: start, End: end}).Days(); len(all) != want {
		return nil, fmt.Errorf("normalize: daily rule produced %d days for a %d-day range", len(all), want)
	}
	for i, d := range all {
		// Re-anchor on wall-clock midnight; DST days are not 24h long.
		all[i] = midnight(d, loc)
	}
	return all, nil
}

// NormalizeURL applies the schema's scheme prefix, if any.
func (e Expander) NormalizeURL(raw string) string {
	if e.Schema.PrefixScheme == "" {
		return raw
	}
	return e.Schema.PrefixScheme + raw
}

func (e Expander) location() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

// AssembleTitle joins the non-empty descriptive fields with blank lines, in
// the order heading, description, address, extra info.
func AssembleTitle(meta Metadata) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{meta.Heading, meta.Description, meta.Address, meta.ExtraInfo} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func makeOccurrence(id, title, url string, day time.Time, w model.TimeWindow) model.Occurrence {
	occ := model.Occurrence{
		ID:    id,
		Title: title,
		URL:   url,
	}

	if w.AllDay {
		occ.AllDay = true
		occ.Start = day
	} else {
		occ.Start = atOffset(day, w.Start)
		if w.HasEnd {
			occ.End = atOffset(day, w.End)
			occ.HasEnd = true
		}
	}

	occ.InstanceKey = id + "-" + occ.Start.Format(instanceKeyLayout)
	return occ
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// atOffset returns the wall-clock time off after day's midnight.
func atOffset(day time.Time, off time.Duration) time.Time {
	h := int(off / time.Hour)
	m := int(off % time.Hour / time.Minute)
	s := int(off % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location())
}
