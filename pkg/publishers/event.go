package publishers

import (
	"fmt"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/google/uuid"
)

// Event kinds.
const (
	KindDocument    = "document"
	KindPageChanged = "page_changed"
)

// Event represents one notification dispatched to every publisher.
type Event struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	Title        string    `json:"title,omitempty"`
	Template     string    `json:"template,omitempty"`
	PublishedAt  time.Time `json:"published_at,omitzero"`
	DocumentURL  string    `json:"document_url,omitempty"`
	PageURL      string    `json:"page_url,omitempty"`
	Caption      string    `json:"caption"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	ArtifactKind string    `json:"artifact_kind,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

// NewDocumentEvent builds the event announcing a newly published document.
func NewDocumentEvent(sourceID, sourceName string, rec domain.DocumentRecord, documentURL string) Event {
	return Event{
		ID:          newEventID(),
		Kind:        KindDocument,
		SourceID:    sourceID,
		SourceName:  sourceName,
		Title:       rec.Title,
		Template:    rec.MatchedTemplate,
		PublishedAt: rec.PublishedAt,
		DocumentURL: documentURL,
		Caption:     DocumentCaption(rec),
		DetectedAt:  time.Now().UTC(),
	}
}

// NewPageChangedEvent builds the event announcing that a watched page changed.
func NewPageChangedEvent(sourceID, sourceName, pageURL string) Event {
	name := sourceName
	if name == "" {
		name = sourceID
	}
	return Event{
		ID:         newEventID(),
		Kind:       KindPageChanged,
		SourceID:   sourceID,
		SourceName: sourceName,
		PageURL:    pageURL,
		Caption:    fmt.Sprintf("%s changed: %s", name, pageURL),
		DetectedAt: time.Now().UTC(),
	}
}

// WithArtifact attaches a converted file to the event.
func (e Event) WithArtifact(path, kind, contentType string) Event {
	e.ArtifactPath = path
	e.ArtifactKind = kind
	e.ContentType = contentType
	return e
}

// DocumentCaption renders "<template>: <title> (<DD.MM.YY HH:MM>)".
func DocumentCaption(rec domain.DocumentRecord) string {
	label := rec.MatchedTemplate
	if label == "" {
		label = "Document"
	}
	if rec.Title == "" {
		return fmt.Sprintf("%s (%s)", label, rec.PublishedLabel())
	}
	return fmt.Sprintf("%s: %s (%s)", label, rec.Title, rec.PublishedLabel())
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
