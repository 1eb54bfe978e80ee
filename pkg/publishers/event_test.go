package publishers

import (
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/google/uuid"
)

func TestNewDocumentEventCaption(t *testing.T) {
	rec := domain.DocumentRecord{
		SourceID:        "fia-f1",
		PublishedAt:     time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC),
		RelativeLink:    "/sites/default/files/doc_42.pdf",
		Title:           "Doc 42 - Final Race Classification",
		MatchedTemplate: "Race",
	}

	evt := NewDocumentEvent("fia-f1", "FIA F1", rec, "https://www.fia.com/sites/default/files/doc_42.pdf")

	if want := "Race: Doc 42 - Final Race Classification (10.03.24 16:00)"; evt.Caption != want {
		t.Fatalf("caption = %q, want %q", evt.Caption, want)
	}
	id, err := uuid.Parse(evt.ID)
	if err != nil {
		t.Fatalf("event id is not a uuid: %v", err)
	}
	if id.Version() != 7 {
		t.Fatalf("expected v7 id, got v%d", id.Version())
	}
	if evt.Kind != KindDocument || !evt.PublishedAt.Equal(rec.PublishedAt) {
		t.Fatalf("unexpected event: %#v", evt)
	}

	withArt := evt.WithArtifact("/tmp/doc-p2.jpg", "image", "image/jpeg")
	if withArt.ArtifactPath != "/tmp/doc-p2.jpg" || evt.ArtifactPath != "" {
		t.Fatalf("WithArtifact must return a copy")
	}
}
