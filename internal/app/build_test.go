package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/config"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	pubs := filepath.Join(dir, "publishers.yaml")
	writeFile(t, pubs, `
publishers:
  - id: console
    type: log
`)
	return &config.Config{
		PublishersFile:         pubs,
		SourcesFile:            filepath.Join(dir, "missing.yaml"),
		SourceURL:              "https://www.fia.com/documents/championships/fia-formula-one-world-championship-14",
		TitleTemplates:         "Race=Final Race Classification,Final Starting Grid",
		WatchMode:              sources.ModeTimestampLog,
		StorageType:            "memory",
		StateDir:               filepath.Join(dir, "state"),
		DownloadDir:            filepath.Join(dir, "downloads"),
		ConvertMode:            "document",
		ScheduleMode:           ScheduleFixedDelay,
		PollInterval:           time.Hour,
		TickInterval:           time.Minute,
		HTTPTimeout:            time.Second,
		ItemTimeout:            time.Second,
		DeliveryTTL:            time.Hour,
		StorageCleanupInterval: time.Hour,
		Location:               time.UTC,
	}
}

func TestLoadSourcesFallsBackToFlatKeys(t *testing.T) {
	cfg := baseConfig(t)

	srcs, err := loadSources(cfg)
	if err != nil {
		t.Fatalf("loadSources: %v", err)
	}
	if len(srcs) != 1 {
		t.Fatalf("expected one source, got %d", len(srcs))
	}
	src := srcs[0]
	if src.ID != DefaultSourceID || src.Mode != sources.ModeTimestampLog {
		t.Fatalf("unexpected source %+v", src)
	}
	if src.BaseURL != "https://www.fia.com/" {
		t.Fatalf("base url should default to the source origin, got %q", src.BaseURL)
	}
	if len(src.Templates) != 2 || src.Templates[0].Name != "Race" || src.Templates[1].Match != "Final Starting Grid" {
		t.Fatalf("unexpected templates %+v", src.Templates)
	}
}

func TestLoadSourcesPrefersFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SourcesFile = filepath.Join(t.TempDir(), "sources.yaml")
	writeFile(t, cfg.SourcesFile, `
sources:
  - id: f1
    source_url: https://www.fia.com/documents/f1
  - id: f2
    mode: page_hash
    source_url: https://www.fia.com/documents/f2
`)

	srcs, err := loadSources(cfg)
	if err != nil {
		t.Fatalf("loadSources: %v", err)
	}
	if len(srcs) != 2 || srcs[0].ID != "f1" || srcs[1].Mode != sources.ModePageHash {
		t.Fatalf("unexpected sources %+v", srcs)
	}
}

func TestLoadSourcesRequiresSomething(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SourceURL = ""

	if _, err := loadSources(cfg); err == nil {
		t.Fatalf("expected error when no source is configured")
	}
}

func TestBuildWiresWatcher(t *testing.T) {
	cfg := baseConfig(t)

	w, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer w.close()

	st := w.Status()
	if st.ScheduleMode != ScheduleFixedDelay {
		t.Fatalf("schedule mode = %q", st.ScheduleMode)
	}
	if len(st.Sources) != 1 || st.Sources[0] != DefaultSourceID {
		t.Fatalf("unexpected sources %+v", st.Sources)
	}
}

func TestBuildRejectsNoEnabledPublishers(t *testing.T) {
	cfg := baseConfig(t)
	writeFile(t, cfg.PublishersFile, `
publishers:
  - id: console
    type: log
    enabled: false
`)

	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without enabled publishers")
	}
}
