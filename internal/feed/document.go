package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventfeed/internal/model"
)

// LocalLayout is the ISO-8601 local timestamp used in the JSON feed. It has
// no offset: consumers interpret it as wall-clock time.
const LocalLayout = "2006-01-02T15:04:05"

const (
	icsFloatingLayout = "20060102T150405"
	productID         = "-//eventfeed//eventfeed//EN"
)

// occurrenceDTO is the JSON shape of one published occurrence.
type occurrenceDTO struct {
	ID     string `json:"id"`
	Start  string `json:"start"`
	End    string `json:"end,omitempty"`
	AllDay bool   `json:"allDay,omitempty"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// EncodeJSON renders occurrences as the published JSON array.
func EncodeJSON(occs []model.Occurrence) ([]byte, error) {
	dtos := make([]occurrenceDTO, 0, len(occs))
	for _, o := range occs {
		dto := occurrenceDTO{
			ID:     o.ID,
			Start:  o.Start.Format(LocalLayout),
			AllDay: o.AllDay,
			Title:  o.Title,
			URL:    o.URL,
		}
		if o.HasEnd {
			dto.End = o.End.Format(LocalLayout)
		}
		dtos = append(dtos, dto)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(dtos); err != nil {
		return nil, fmt.Errorf("feed: encoding JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses a published JSON feed, placing timestamps in loc.
func DecodeJSON(data []byte, loc *time.Location) ([]model.Occurrence, error) {
	if loc == nil {
		loc = time.Local
	}
	var dtos []occurrenceDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("feed: decoding JSON: %w", err)
	}

	out := make([]model.Occurrence, 0, len(dtos))
	for i, dto := range dtos {
		start, err := time.ParseInLocation(LocalLayout, dto.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("feed: entry %d: start: %w", i, err)
		}
		occ := model.Occurrence{
			ID:     dto.ID,
			Title:  dto.Title,
			URL:    dto.URL,
			AllDay: dto.AllDay,
			Start:  start,
		}
		if dto.End != "" {
			end, err := time.ParseInLocation(LocalLayout, dto.End, loc)
			if err != nil {
				return nil, fmt.Errorf("feed: entry %d: end: %w", i, err)
			}
			occ.End = end
			occ.HasEnd = true
		}
		occ.InstanceKey = occ.ID + "-" + start.Format(icsFloatingLayout)
		out = append(out, occ)
	}
	return model.UniqueInstances(out), nil
}

// EncodeICS renders occurrences as an iCalendar document. Timed events use
// floating local times, all-day events DATE values.
func EncodeICS(occs []model.Occurrence, calName string, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, o := range occs {
		ev := cal.AddEvent(o.InstanceKey)
		ev.SetDtStampTime(stamp)
		if o.AllDay {
			ev.SetAllDayStartAt(o.Start)
			ev.SetAllDayEndAt(o.Start.AddDate(0, 0, 1))
		} else {
			ev.SetProperty(ical.ComponentPropertyDtStart, o.Start.Format(icsFloatingLayout))
			if o.HasEnd {
				ev.SetProperty(ical.ComponentPropertyDtEnd, o.End.Format(icsFloatingLayout))
			}
		}
		ev.SetSummary(firstLine(o.Title))
		ev.SetDescription(o.Title)
		if o.URL != "" {
			ev.SetURL(o.URL)
		}
	}

	return cal.Serialize()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
