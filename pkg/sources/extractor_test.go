package sources

import (
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
)

const fiaIndexPage = `
<html><body>
<ul class="document-type-template">
  <li class="document-row">
    <a href="/sites/default/files/decision-document/doc_42_-_final_race_classification.pdf">
      <div class="title">Doc 42 - Final Race Classification</div>
      <div class="published"><span class="date-display-single">10.03.24 16:00</span></div>
    </a>
  </li>
  <li class="document-row">
    <a href="/sites/default/files/decision-document/doc_40_-_summons.pdf">
      <div class="title">Doc 40 - Summons - Car 1</div>
      <div class="published"><span class="date-display-single">10.03.24 15:30</span></div>
    </a>
  </li>
  <li class="document-row">
    <a href="/sites/default/files/decision-document/doc_31_-_final_starting_grid.pdf">
      <div class="title">Doc 31 - Final Starting Grid</div>
      <div class="published"><span class="date-display-single">10.03.24 15:00</span></div>
    </a>
  </li>
  <li class="document-row">
    <a href="/sites/default/files/decision-document/doc_20_-_final_race_classification.pdf">
      <div class="title">Doc 20 - Final Race Classification</div>
      <div class="published"><span class="date-display-single">yesterday</span></div>
    </a>
  </li>
  <li class="document-row">
    <div class="title">Doc 19 - Final Race Classification (withdrawn)</div>
  </li>
  <li class="document-row">
    <a href="/sites/default/files/decision-document/doc_12_-_final_race_classification.pdf">
      <div class="title">Doc 12 - Final Race Classification</div>
      <div class="published"><span class="date-display-single">09.03.24 14:00</span></div>
    </a>
  </li>
</ul>
</body></html>`

func snapshotOf(body string) domain.SourceSnapshot {
	return domain.SourceSnapshot{SourceID: "fia-f1", Body: []byte(body)}
}

func TestExtractFiltersByTemplateInPageOrder(t *testing.T) {
	ex := NewExtractor(time.UTC)
	res, err := ex.Extract(snapshotOf(fiaIndexPage), DefaultTemplates, Selectors{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Rows != 6 {
		t.Fatalf("expected 6 rows scanned, got %d", res.Rows)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d: %#v", len(res.Records), res.Records)
	}

	wantLinks := []string{
		"/sites/default/files/decision-document/doc_42_-_final_race_classification.pdf",
		"/sites/default/files/decision-document/doc_31_-_final_starting_grid.pdf",
		"/sites/default/files/decision-document/doc_12_-_final_race_classification.pdf",
	}
	wantTemplates := []string{"Race", "Grid", "Race"}
	for i, rec := range res.Records {
		if rec.RelativeLink != wantLinks[i] {
			t.Errorf("record %d link = %s", i, rec.RelativeLink)
		}
		if rec.MatchedTemplate != wantTemplates[i] {
			t.Errorf("record %d template = %s", i, rec.MatchedTemplate)
		}
		if rec.SourceID != "fia-f1" {
			t.Errorf("record %d source = %s", i, rec.SourceID)
		}
	}
	if res.Records[0].Title != "Doc 42 - Final Race Classification" {
		t.Errorf("unexpected title %q", res.Records[0].Title)
	}
	if got := res.Records[0].PublishedLabel(); got != "10.03.24 16:00" {
		t.Errorf("published label = %s", got)
	}
}

func TestExtractSkipsUnreadableRowsWithoutFailing(t *testing.T) {
	ex := NewExtractor(time.UTC)
	res, err := ex.Extract(snapshotOf(fiaIndexPage), DefaultTemplates, Selectors{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("expected 2 skipped rows, got %#v", res.Skipped)
	}
	if res.Skipped[0].Index != 3 || !strings.Contains(res.Skipped[0].Reason, "yesterday") {
		t.Errorf("unexpected first skip %#v", res.Skipped[0])
	}
	if res.Skipped[1].Index != 4 || res.Skipped[1].Reason != "no document link" {
		t.Errorf("unexpected second skip %#v", res.Skipped[1])
	}
}

func TestExtractPageIsNewestFirst(t *testing.T) {
	ex := NewExtractor(time.UTC)
	res, err := ex.Extract(snapshotOf(fiaIndexPage), DefaultTemplates, Selectors{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !NewestFirst(res.Records) {
		t.Fatalf("expected the index page to list documents newest first")
	}

	reversed := []domain.DocumentRecord{res.Records[2], res.Records[0]}
	if NewestFirst(reversed) {
		t.Fatalf("expected out-of-order records to be detected")
	}
}

func TestExtractEmptyPageYieldsNothing(t *testing.T) {
	ex := NewExtractor(time.UTC)
	res, err := ex.Extract(snapshotOf("<html><body><p>maintenance</p></body></html>"), DefaultTemplates, Selectors{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Records) != 0 || len(res.Skipped) != 0 {
		t.Fatalf("expected empty result, got %#v", res)
	}
}

func TestExtractParsesInSourceLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ex := NewExtractor(paris)
	res, err := ex.Extract(snapshotOf(fiaIndexPage), DefaultTemplates, Selectors{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)
	if got := res.Records[0].PublishedAt.UTC(); !got.Equal(want) {
		t.Fatalf("PublishedAt = %v, want %v", got, want)
	}
}

func TestSelectorsForHonoursOverrides(t *testing.T) {
	sel := SelectorsFor(Source{Config: map[string]any{
		ConfigRowSelectorKey:  "tr.doc",
		ConfigDateSelectorKey: "td.date",
	}})
	if sel.Row != "tr.doc" || sel.Date != "td.date" || sel.Title != DefaultTitleSelector {
		t.Fatalf("unexpected selectors %#v", sel)
	}
}
