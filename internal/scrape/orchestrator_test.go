package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventfeed/internal/model"
	"eventfeed/internal/normalize"
)

// fakeSession serves canned pages and records how it was driven.
type fakeSession struct {
	pages   [][]model.RawRow
	current int

	rowsErr error
	nextErr error

	// onRows runs after every Rows call; tests use it to move the clock.
	onRows func()

	rowsCalls int
	nextCalls int
	closed    bool
}

func (s *fakeSession) Rows(context.Context) ([]model.RawRow, error) {
	s.rowsCalls++
	if s.onRows != nil {
		s.onRows()
	}
	if s.rowsErr != nil {
		return nil, s.rowsErr
	}
	return s.pages[s.current], nil
}

func (s *fakeSession) HasNext(context.Context) (bool, error) {
	return s.current+1 < len(s.pages), nil
}

func (s *fakeSession) Next(context.Context) error {
	s.nextCalls++
	if s.nextErr != nil {
		return s.nextErr
	}
	s.current++
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func threePages() [][]model.RawRow {
	return [][]model.RawRow{
		{
			{Title: "Summer Fair", URL: "www.example.org/fair", DateText: "Mon 5 - Wed 7 Jun 2023"},
			{Title: "Cathedral Tour", DateText: "Sat 10 Jun 2023", TimeText: "10:00 to 12:00"},
		},
		{
			{Title: "Jazz Night", DateText: "Fri 9 Jun 2023", TimeText: "19:30 to 23:00"},
		},
		{
			{Title: "Food Market", DateText: "Sun 11 Jun 2023", TimeText: "09:00 to 13:00, 14:00 to 17:00"},
		},
	}
}

func newOrchestrator(sess *fakeSession, clock *fakeClock) *Orchestrator {
	return &Orchestrator{
		Source: SourceFunc(func(context.Context) (Session, error) {
			return sess, nil
		}),
		Normalizer: normalize.NewNormalizer(normalize.SchemaLegacy, time.UTC, false),
		Now:        clock.Now,
	}
}

func TestRun_AllPages(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	sess := &fakeSession{pages: threePages(), onRows: func() { clock.Advance(time.Second) }}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 4, res.Rows)
	assert.False(t, res.BudgetExceeded)
	// 3 + 1 + 1 + 2 occurrences, in page order.
	require.Len(t, res.Occurrences, 7)
	assert.Contains(t, res.Occurrences[0].Title, "Summer Fair")
	assert.Contains(t, res.Occurrences[6].Title, "Food Market")
	assert.Equal(t, 2, sess.nextCalls)
	assert.True(t, sess.closed)
	assert.Equal(t, 3*time.Second, res.Elapsed)
}

func TestRun_ZeroBudgetStillScrapesFirstPage(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	sess := &fakeSession{pages: threePages()}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.True(t, res.BudgetExceeded)
	assert.Len(t, res.Occurrences, 4)
	assert.Equal(t, 1, sess.rowsCalls)
	assert.Zero(t, sess.nextCalls)
	assert.True(t, sess.closed)
}

func TestRun_BudgetStopsMidway(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	sess := &fakeSession{pages: threePages(), onRows: func() { clock.Advance(40 * time.Second) }}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), 60*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.True(t, res.BudgetExceeded)
	assert.Len(t, res.Occurrences, 5)
}

func TestRun_BadRowAbortsRun(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	pages := threePages()
	pages[1][0].DateText = "next Friday"
	sess := &fakeSession{pages: pages}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrUnrecognizedDateFormat)
	assert.Empty(t, res.Occurrences)
	assert.True(t, sess.closed)
}

func TestRun_PageErrorsAbortRun(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	boom := errors.New("render timeout")

	sess := &fakeSession{pages: threePages(), rowsErr: boom}
	_, err := newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	assert.ErrorIs(t, err, boom)

	sess = &fakeSession{pages: threePages(), nextErr: boom}
	_, err = newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	assert.ErrorIs(t, err, boom)
	assert.True(t, sess.closed)
}

func TestRun_OpenFailure(t *testing.T) {
	boom := errors.New("browser did not start")
	o := &Orchestrator{
		Source: SourceFunc(func(context.Context) (Session, error) {
			return nil, boom
		}),
		Normalizer: normalize.NewNormalizer(normalize.SchemaLegacy, time.UTC, false),
	}

	_, err := o.Run(context.Background(), time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestRun_CancelledContextStopsBeforeNavigation(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	sess := &fakeSession{pages: threePages()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newOrchestrator(sess, clock).Run(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sess.nextCalls)
}

func TestRun_EmptyListing(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	sess := &fakeSession{pages: [][]model.RawRow{{}}}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, res.Occurrences)
	assert.Empty(t, res.Occurrences)
}

func TestRun_DuplicateRowsPublishedOnce(t *testing.T) {
	clock := &fakeClock{t: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)}
	row := model.RawRow{Title: "Jazz Night", DateText: "Fri 9 Jun 2023", TimeText: "19:30 to 23:00"}
	sess := &fakeSession{pages: [][]model.RawRow{{row}, {row}}}

	res, err := newOrchestrator(sess, clock).Run(context.Background(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	require.Len(t, res.Occurrences, 1)
	assert.Contains(t, res.Occurrences[0].Title, "Jazz Night")
}
