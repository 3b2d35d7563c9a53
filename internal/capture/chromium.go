package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	appLog "eventfeed/internal/log"
	"eventfeed/internal/model"
)

// Default browser parameters for the listing site.
const (
	DefaultTimeoutSec = 30
	pollInterval      = 200 * time.Millisecond
)

var (
	// ErrPageFetch reports a failed navigation, click or DOM read.
	ErrPageFetch = errors.New("capture: page fetch failed")
	// ErrRenderTimeout reports a page operation that did not finish in time.
	ErrRenderTimeout = errors.New("capture: render timeout")
)

// BrowserOptions defines how the listing site is opened.
type BrowserOptions struct {
	// URL of the first listing page.
	URL string

	Selectors Selectors

	// Timeout bounds every single page operation (navigation, waiting for
	// the spinner, clicking next). If zero, DefaultTimeoutSec is used.
	Timeout time.Duration

	// ExecPath optionally points at a Chrome/Chromium binary.
	ExecPath string
}

// Browser opens headless Chromium sessions on the listing site.
type Browser struct {
	opts BrowserOptions
}

// NewBrowser validates opts and fills defaults.
func NewBrowser(opts BrowserOptions) (*Browser, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("capture: URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	opts.Selectors = opts.Selectors.Merge(DefaultSelectors)
	return &Browser{opts: opts}, nil
}

// Session is one browser tab walking the listing pages.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    BrowserOptions
	pageNum int
}

// Open launches a headless browser and loads the first listing page.
// Cancelling parentCtx tears the browser down.
func (b *Browser) Open(parentCtx context.Context) (*Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx: ctx,
		cancel: func() {
			ctxCancel()
			allocCancel()
		},
		opts:    b.opts,
		pageNum: 1,
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		if ev, ok := ev.(*runtime.EventConsoleAPICalled); ok {
			args := make([]string, 0, len(ev.Args))
			for _, a := range ev.Args {
				args = append(args, string(a.Value))
			}
			appLog.Debug("page console", "type", ev.Type, "args", strings.Join(args, " "))
		}
	})

	appLog.Info("browser navigate", "url", b.opts.URL)
	if err := s.run("navigate", chromedp.Navigate(b.opts.URL), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

// Rows waits for the loading spinner to disappear and extracts the rows of
// the current page.
func (s *Session) Rows(_ context.Context) ([]model.RawRow, error) {
	var (
		ready bool
		html  string
	)
	spinnerGone := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return !el || el.offsetParent === null || getComputedStyle(el).visibility === "hidden";
	})()`, s.opts.Selectors.Spinner)

	appLog.Debug("awaiting loading spinner", "page", s.pageNum)
	err := s.run("wait for render",
		chromedp.Poll(spinnerGone, &ready, chromedp.WithPollingInterval(pollInterval)),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	rows, err := ExtractRows(strings.NewReader(html), s.opts.Selectors)
	if err != nil {
		return nil, err
	}
	appLog.Debug("rows extracted", "page", s.pageNum, "rows", len(rows))
	return rows, nil
}

// HasNext reports whether the current page offers a "next page" link.
func (s *Session) HasNext(_ context.Context) (bool, error) {
	var ok bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, s.opts.Selectors.Next)
	if err := s.run("look for next page", chromedp.Evaluate(expr, &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

// Next clicks the "next page" link and waits for the new document to load.
func (s *Session) Next(_ context.Context) error {
	var marked, loaded bool
	// The marker only survives on the old document, so its absence proves
	// that navigation happened.
	err := s.run("next page",
		chromedp.Evaluate(`window.__eventfeedStale = true`, &marked),
		chromedp.Click(s.opts.Selectors.Next, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Poll(`window.__eventfeedStale !== true && document.readyState === "complete"`,
			&loaded, chromedp.WithPollingInterval(pollInterval)),
	)
	if err != nil {
		return err
	}
	s.pageNum++
	return nil
}

// Close shuts the tab and the browser process down.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// run executes actions with the per-operation timeout and classifies
// failures.
func (s *Session) run(op string, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s on page %d: %w", ErrRenderTimeout, op, s.pageNum, err)
		}
		return fmt.Errorf("%w: %s on page %d: %w", ErrPageFetch, op, s.pageNum, err)
	}
	return nil
}
