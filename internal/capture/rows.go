package capture

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eventfeed/internal/model"
)

// Selectors locates listing fields in the rendered page. Field selectors are
// relative to a row; DateText and TimeText are relative to Date.
type Selectors struct {
	Row         string
	Title       string
	Address     string
	ExtraInfo   string
	URL         string
	Description string
	Date        string
	DateText    string
	TimeText    string

	// Spinner is the loading overlay that must be hidden before rows are read.
	Spinner string
	// Next is the "next page" link.
	Next string
}

// DefaultSelectors matches the DMS browse markup.
var DefaultSelectors = Selectors{
	Row:         ".thedmsBrowseRow .regularScreenOnly",
	Title:       ".thedmsBrowseH2Background",
	Address:     ".thedmsAddress",
	ExtraInfo:   ".thedmsPhone",
	URL:         ".thedmsWebsite",
	Description: ".thedmsDescription",
	Date:        ".thedmsEventDate",
	DateText:    "strong > a",
	TimeText:    "ul > li",
	Spinner:     "#loadinganimation",
	Next:        "a.pagenextbrowsedata12",
}

// Merge returns s with every empty field taken from defaults.
func (s Selectors) Merge(defaults Selectors) Selectors {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return Selectors{
		Row:         pick(s.Row, defaults.Row),
		Title:       pick(s.Title, defaults.Title),
		Address:     pick(s.Address, defaults.Address),
		ExtraInfo:   pick(s.ExtraInfo, defaults.ExtraInfo),
		URL:         pick(s.URL, defaults.URL),
		Description: pick(s.Description, defaults.Description),
		Date:        pick(s.Date, defaults.Date),
		DateText:    pick(s.DateText, defaults.DateText),
		TimeText:    pick(s.TimeText, defaults.TimeText),
		Spinner:     pick(s.Spinner, defaults.Spinner),
		Next:        pick(s.Next, defaults.Next),
	}
}

// ExtractRows parses a rendered listing page and returns its rows in
// document order.
func ExtractRows(r io.Reader, sel Selectors) ([]model.RawRow, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("capture: parsing HTML: %w", err)
	}

	rows := make([]model.RawRow, 0)
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		titles := row.Find(sel.Title)
		date := row.Find(sel.Date)

		rows = append(rows, model.RawRow{
			// Drop nested title matches so their text is not counted twice.
			Title:       strings.TrimSpace(titles.NotSelection(titles.Children()).Text()),
			Address:     fieldText(row, sel.Address),
			ExtraInfo:   fieldText(row, sel.ExtraInfo),
			URL:         fieldText(row, sel.URL),
			Description: fieldText(row, sel.Description),
			DateText:    fieldText(date, sel.DateText),
			TimeText:    joinedText(date, sel.TimeText, ", "),
		})
	})

	return rows, nil
}

func fieldText(s *goquery.Selection, selector string) string {
	return strings.TrimSpace(s.Find(selector).Text())
}

// joinedText trims every match and joins the non-empty ones with sep, so
// separate list items stay separate slots.
func joinedText(s *goquery.Selection, selector, sep string) string {
	parts := make([]string, 0)
	s.Find(selector).Each(func(_ int, item *goquery.Selection) {
		if t := strings.TrimSpace(item.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, sep)
}
