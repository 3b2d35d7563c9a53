package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventfeed/internal/model"
)

var sampleMeta = Metadata{
	Heading:     "Summer Fair",
	Description: "Stalls, music and food.",
	Address:     "Dane John Gardens, Canterbury",
	ExtraInfo:   "01227 000000",
	URL:         "www.example.org/fair",
}

func TestExpand_AllDayRange(t *testing.T) {
	e := Expander{Schema: SchemaLegacy, Location: time.UTC}
	rng := model.DateRange{Start: day(2023, time.June, 5), End: day(2023, time.June, 7)}

	occs, err := e.Expand(rng, []model.TimeWindow{{AllDay: true}}, sampleMeta)
	require.NoError(t, err)
	require.Len(t, occs, 3)

	for i, occ := range occs {
		want := day(2023, time.June, 5+i)
		assert.True(t, occ.AllDay)
		assert.True(t, occ.Start.Equal(want), "start %d = %s", i, occ.Start)
		assert.False(t, occ.HasEnd)
		assert.True(t, occ.End.IsZero())
		assert.Equal(t, occs[0].ID, occ.ID)
	}
}

func TestExpand_TwoSlotsOneDay(t *testing.T) {
	e := Expander{Schema: SchemaLegacy, Location: time.UTC}
	windows, err := TimeParser{Schema: SchemaLegacy}.ParseTimeWindows("10:00 to 12:00, 14:00 to 16:00")
	require.NoError(t, err)

	rng := model.DateRange{Start: day(2023, time.June, 5), End: day(2023, time.June, 5)}
	occs, err := e.Expand(rng, windows, sampleMeta)
	require.NoError(t, err)
	require.Len(t, occs, 2)

	assert.Equal(t, time.Date(2023, time.June, 5, 10, 0, 0, 0, time.UTC), occs[0].Start)
	assert.Equal(t, time.Date(2023, time.June, 5, 12, 0, 0, 0, time.UTC), occs[0].End)
	assert.Equal(t, time.Date(2023, time.June, 5, 14, 0, 0, 0, time.UTC), occs[1].Start)
	assert.Equal(t, time.Date(2023, time.June, 5, 16, 0, 0, 0, time.UTC), occs[1].End)
	for _, occ := range occs {
		assert.False(t, occ.AllDay)
		assert.True(t, occ.HasEnd)
	}
	assert.NotEqual(t, occs[0].InstanceKey, occs[1].InstanceKey)
}

func TestExpand_EveryDayRepeatsEverySlot(t *testing.T) {
	e := Expander{Schema: SchemaLegacy, Location: time.UTC}
	windows := []model.TimeWindow{
		{Start: hm(10, 0), End: hm(12, 0), HasEnd: true},
		{Start: hm(14, 0)},
	}
	rng := model.DateRange{Start: day(2023, time.June, 30), End: day(2023, time.July, 2)}

	occs, err := e.Expand(rng, windows, sampleMeta)
	require.NoError(t, err)
	require.Len(t, occs, 6)

	wantStarts := []time.Time{
		time.Date(2023, time.June, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2023, time.June, 30, 14, 0, 0, 0, time.UTC),
		time.Date(2023, time.July, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2023, time.July, 1, 14, 0, 0, 0, time.UTC),
		time.Date(2023, time.July, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2023, time.July, 2, 14, 0, 0, 0, time.UTC),
	}
	for i, occ := range occs {
		assert.Equal(t, wantStarts[i], occ.Start)
	}
	// A start-only slot never gets an invented end.
	assert.False(t, occs[1].HasEnd)
	assert.True(t, occs[1].End.IsZero())
}

func TestExpand_InvertedRangeFailsFast(t *testing.T) {
	e := Expander{Schema: SchemaLegacy, Location: time.UTC}
	rng := model.DateRange{Start: day(2023, time.June, 7), End: day(2023, time.June, 5)}

	occs, err := e.Expand(rng, nil, sampleMeta)
	assert.ErrorIs(t, err, ErrInvertedDateRange)
	assert.Nil(t, occs)
}

func TestExpand_NoWindowsMeansAllDay(t *testing.T) {
	e := Expander{Schema: SchemaLegacy, Location: time.UTC}
	rng := model.DateRange{Start: day(2023, time.June, 5), End: day(2023, time.June, 5)}

	occs, err := e.Expand(rng, nil, sampleMeta)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].AllDay)
}

func TestExpand_DSTKeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	e := Expander{Schema: SchemaLegacy, Location: loc}
	// Clocks go forward on 26 Mar 2023.
	rng := model.DateRange{
		Start: time.Date(2023, time.March, 25, 0, 0, 0, 0, loc),
		End:   time.Date(2023, time.March, 27, 0, 0, 0, 0, loc),
	}
	occs, err := e.Expand(rng, []model.TimeWindow{{Start: hm(10, 0), End: hm(12, 0), HasEnd: true}}, sampleMeta)
	require.NoError(t, err)
	require.Len(t, occs, 3)
	for i, occ := range occs {
		assert.Equal(t, 25+i, occ.Start.Day())
		assert.Equal(t, 10, occ.Start.Hour())
		assert.Equal(t, 12, occ.End.Hour())
	}
}

func TestAssembleTitle(t *testing.T) {
	assert.Equal(t,
		"Summer Fair\n\nStalls, music and food.\n\nDane John Gardens, Canterbury\n\n01227 000000",
		AssembleTitle(sampleMeta))

	assert.Equal(t, "Summer Fair\n\nDane John Gardens, Canterbury",
		AssembleTitle(Metadata{Heading: "Summer Fair", Address: "Dane John Gardens, Canterbury"}))

	assert.Equal(t, "", AssembleTitle(Metadata{}))
	assert.False(t, strings.Contains(AssembleTitle(Metadata{Heading: "A", ExtraInfo: "B"}), "\n\n\n"))
}

func TestNormalizeURL(t *testing.T) {
	legacy := Expander{Schema: SchemaLegacy}
	current := Expander{Schema: SchemaCurrent}

	assert.Equal(t, "http://www.example.org/fair", legacy.NormalizeURL("www.example.org/fair"))
	assert.Equal(t, "https://www.example.org/fair", current.NormalizeURL("https://www.example.org/fair"))

	// Prefixing is driven by configuration only, never by the value.
	assert.Equal(t, "http://https://x.org", legacy.NormalizeURL("https://x.org"))
}

func TestExpand_URLAndIDFollowSchema(t *testing.T) {
	rng := model.DateRange{Start: day(2023, time.June, 5), End: day(2023, time.June, 5)}

	legacy, err := Expander{Schema: SchemaLegacy, Location: time.UTC}.Expand(rng, nil, sampleMeta)
	require.NoError(t, err)
	assert.Equal(t, "http://www.example.org/fair", legacy[0].URL)
	assert.Equal(t, AssignID(AssembleTitle(sampleMeta), "http://www.example.org/fair"), legacy[0].ID)
	assert.Equal(t, legacy[0].ID+"-20230605T000000", legacy[0].InstanceKey)
}
