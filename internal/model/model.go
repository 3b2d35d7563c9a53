package model

import (
	"fmt"
	"time"
)

// RawRow is one listing item as extracted from a rendered page, before any
// parsing. All fields are trimmed text; empty means the field was absent.
type RawRow struct {
	Title       string
	Address     string
	ExtraInfo   string // phone or cost, depending on the markup variant
	URL         string
	DateText    string
	TimeText    string
	Description string
}

// DateRange is an inclusive range of calendar days. Start and End are local
// midnights; Start is never after End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	a := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours()/24) + 1
}

// TimeWindow is one time slot of an event day.
//
// Start/End are offsets from local midnight. End is only meaningful when
// HasEnd is set; it is never derived from Start.
type TimeWindow struct {
	AllDay bool
	Start  time.Duration
	End    time.Duration
	HasEnd bool
}

// Occurrence represents a single concrete instance of an event
// (after multi-day expansion), as published in the feed.
type Occurrence struct {
	// ID is content-derived and shared by every occurrence of one event.
	ID string

	// InstanceKey uniquely identifies a single occurrence, derived from ID
	// and the local start time.
	InstanceKey string

	Title string
	URL   string

	AllDay bool

	// Start / End are local wall-clock times in the configured location.
	Start  time.Time
	End    time.Time
	HasEnd bool
}

// UniqueInstances drops exact duplicates and gives occurrences that share an
// InstanceKey but differ otherwise distinct keys by appending "-2", "-3", ...
// Order is preserved.
func UniqueInstances(occs []Occurrence) []Occurrence {
	out := make([]Occurrence, 0, len(occs))
	byKey := make(map[string][]Occurrence, len(occs))
	for _, o := range occs {
		base := o.InstanceKey
		dup := false
		for _, k := range byKey[base] {
			if sameInstance(k, o) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		byKey[base] = append(byKey[base], o)
		if n := len(byKey[base]); n > 1 {
			o.InstanceKey = fmt.Sprintf("%s-%d", base, n)
		}
		out = append(out, o)
	}
	return out
}

func sameInstance(a, b Occurrence) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.URL == b.URL &&
		a.AllDay == b.AllDay &&
		a.HasEnd == b.HasEnd &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End)
}
