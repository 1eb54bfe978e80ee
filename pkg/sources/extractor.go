package sources

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultRowSelector   = "li.document-row"
	DefaultDateSelector  = "div.published span.date-display-single"
	DefaultTitleSelector = "div.title"
)

// Selectors locate document rows and their fields in the index markup.
type Selectors struct {
	Row   string
	Date  string
	Title string
}

// SelectorsFor returns the selectors configured for a source, falling back to the FIA layout.
func SelectorsFor(src Source) Selectors {
	return Selectors{
		Row:   ConfigString(src, ConfigRowSelectorKey, DefaultRowSelector),
		Date:  ConfigString(src, ConfigDateSelectorKey, DefaultDateSelector),
		Title: ConfigString(src, ConfigTitleSelectorKey, DefaultTitleSelector),
	}
}

// RowError explains why a matching row was skipped.
type RowError struct {
	Index  int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Index, e.Reason)
}

// ExtractResult holds the records found on a page plus the rows that could not be read.
type ExtractResult struct {
	Records []domain.DocumentRecord
	Skipped []RowError
	Rows    int
}

// Extractor turns an index page snapshot into document records.
type Extractor struct {
	loc *time.Location
}

// NewExtractor builds an extractor that parses published dates in loc.
func NewExtractor(loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{loc: loc}
}

// Extract returns records for rows whose text contains one of the templates, in on-page
// order. A row that cannot be read is skipped and reported; it never fails the page.
func (e *Extractor) Extract(snap domain.SourceSnapshot, templates []domain.Template, sel Selectors) (ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(snap.Body))
	if err != nil {
		return ExtractResult{}, fmt.Errorf("parse html: %w", err)
	}
	if sel.Row == "" {
		sel.Row = DefaultRowSelector
	}
	if sel.Date == "" {
		sel.Date = DefaultDateSelector
	}

	var res ExtractResult
	doc.Find(sel.Row).Each(func(i int, row *goquery.Selection) {
		res.Rows++
		text := collapseSpace(row.Text())
		tmpl, ok := matchTemplate(text, templates)
		if !ok {
			return
		}

		rec, reason := e.readRow(row, sel)
		if reason != "" {
			res.Skipped = append(res.Skipped, RowError{Index: i, Reason: reason})
			return
		}
		rec.SourceID = snap.SourceID
		rec.MatchedTemplate = tmpl.Name
		if rec.Title == "" {
			rec.Title = text
		}
		res.Records = append(res.Records, rec)
	})

	return res, nil
}

func (e *Extractor) readRow(row *goquery.Selection, sel Selectors) (domain.DocumentRecord, string) {
	anchor := row.Find("a[href]").First()
	if anchor.Length() == 0 {
		return domain.DocumentRecord{}, "no document link"
	}
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return domain.DocumentRecord{}, "empty document link"
	}

	dateNode := anchor.Find(sel.Date).First()
	if dateNode.Length() == 0 {
		dateNode = row.Find(sel.Date).First()
	}
	if dateNode.Length() == 0 {
		return domain.DocumentRecord{}, "no published date"
	}
	published, err := domain.ParseTimestamp(dateNode.Text(), e.loc)
	if err != nil {
		return domain.DocumentRecord{}, err.Error()
	}

	var title string
	if sel.Title != "" {
		title = collapseSpace(row.Find(sel.Title).First().Text())
	}

	return domain.DocumentRecord{
		PublishedAt:  published,
		RelativeLink: href,
		Title:        title,
	}, ""
}

// NewestFirst reports whether records are ordered by non-increasing publication time,
// which is the layout the index page is expected to use.
func NewestFirst(records []domain.DocumentRecord) bool {
	for i := 1; i < len(records); i++ {
		if records[i].PublishedAt.After(records[i-1].PublishedAt) {
			return false
		}
	}
	return true
}

func matchTemplate(text string, templates []domain.Template) (domain.Template, bool) {
	for _, t := range templates {
		if t.Match != "" && strings.Contains(text, t.Match) {
			return t, true
		}
	}
	return domain.Template{}, false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
