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

var ErrUnrecognizedTimeFormat = errors.New("normalize: unrecognized time format")

// clockPat matches "H", "HH:MM" and "HH:MM:SS" offsets from midnight.
var clockPat = regexp.MustCompile(`^([0-9]{1,2})(?::([0-9]{2}))?(?::([0-9]{2}))?$`)

// TimeParser turns listing time texts into time windows.
type TimeParser struct {
	Schema Schema
}

// ParseTimeWindows splits text into slots and returns one window per slot.
// An empty text yields a single all-day window.
func (p TimeParser) ParseTimeWindows(text string) ([]model.TimeWindow, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.TimeWindow{{AllDay: true}}, nil
	}

	slots := []string{text}
	if p.Schema.SlotSeparator != "" {
		slots = strings.Split(text, p.Schema.SlotSeparator)
	}

	out := make([]model.TimeWindow, 0, len(slots))
	for _, slot := range slots {
		slot = strings.TrimSpace(slot)
		if slot == "" {
			// Stray separators ("10:00 to 12:00,") carry no slot.
			continue
		}
		w, err := p.parseSlot(slot)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnrecognizedTimeFormat, text, err)
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return []model.TimeWindow{{AllDay: true}}, nil
	}
	return out, nil
}

func (p TimeParser) parseSlot(slot string) (model.TimeWindow, error) {
	parts := []string{slot}
	if p.Schema.TimeSeparator != "" {
		parts = strings.Split(slot, p.Schema.TimeSeparator)
	}
	if len(parts) > 2 {
		return model.TimeWindow{}, fmt.Errorf("slot %q has %d separators", slot, len(parts)-1)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if parts[0] == "" {
		if len(parts) == 2 && parts[1] != "" {
			return model.TimeWindow{}, fmt.Errorf("slot %q has an end but no start", slot)
		}
		return model.TimeWindow{AllDay: true}, nil
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return model.TimeWindow{}, err
	}

	if len(parts) == 1 || parts[1] == "" {
		if start == 0 {
			return model.TimeWindow{AllDay: true}, nil
		}
		return model.TimeWindow{Start: start}, nil
	}

	end, err := parseClock(parts[1])
	if err != nil {
		return model.TimeWindow{}, err
	}
	if start == 0 && end == 0 {
		return model.TimeWindow{AllDay: true}, nil
	}
	return model.TimeWindow{Start: start, End: end, HasEnd: true}, nil
}

// parseClock parses a clock token into an offset from midnight.
func parseClock(tok string) (time.Duration, error) {
	m := clockPat.FindStringSubmatch(tok)
	if m == nil {
		return 0, fmt.Errorf("token %q is not a time of day", tok)
	}
	h, _ := strconv.Atoi(m[1])
	d := time.Duration(h) * time.Hour
	for i, unit := range []time.Duration{time.Minute, time.Second} {
		s := m[i+2]
		if s == "" {
			continue
		}
		n, _ := strconv.Atoi(s)
		if n > 59 {
			return 0, fmt.Errorf("token %q has an out-of-range component", tok)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}
