package normalize

import (
	"fmt"
	"time"

	"eventfeed/internal/model"
)

// Normalizer runs a raw row through date parsing, time parsing and
// expansion.
type Normalizer struct {
	Dates    DateParser
	Times    TimeParser
	Expander Expander
}

// NewNormalizer builds a Normalizer for one schema and location.
func NewNormalizer(schema Schema, loc *time.Location, strictWeekday bool) *Normalizer {
	return &Normalizer{
		Dates:    DateParser{Location: loc, StrictWeekday: strictWeekday},
		Times:    TimeParser{Schema: schema},
		Expander: Expander{Schema: schema, Location: loc},
	}
}

// Normalize converts one row into its occurrences.
func (n *Normalizer) Normalize(row model.RawRow) ([]model.Occurrence, error) {
	rng, err := n.Dates.ParseDateRange(row.DateText)
	if err != nil {
		return nil, fmt.Errorf("row %q: %w", row.Title, err)
	}
	windows, err := n.Times.ParseTimeWindows(row.TimeText)
	if err != nil {
		return nil, fmt.Errorf("row %q: %w", row.Title, err)
	}
	occs, err := n.Expander.Expand(rng, windows, MetadataFromRow(row))
	if err != nil {
		return nil, fmt.Errorf("row %q: %w", row.Title, err)
	}
	return occs, nil
}

// NormalizeAll normalizes rows in order. The first failing row aborts.
func (n *Normalizer) NormalizeAll(rows []model.RawRow) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0, len(rows))
	for _, row := range rows {
		occs, err := n.Normalize(row)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}
	return out, nil
}
