// Package sources contains document index source configs (YAML/JSON), fetching and extraction.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	// ModeTimestampLog diffs individual documents against a published-at watermark.
	ModeTimestampLog = "timestamp_log"
	// ModePageHash compares a digest of the whole page against the last seen digest.
	ModePageHash = "page_hash"
)

// DefaultTemplates are the document titles watched when a source declares none.
var DefaultTemplates = []domain.Template{
	{Name: "Race", Match: "Final Race Classification"},
	{Name: "Grid", Match: "Final Starting Grid"},
}

// Source describes one document index page to watch.
type Source struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Mode      string            `json:"mode" yaml:"mode"`
	SourceURL string            `json:"source_url" yaml:"source_url"`
	BaseURL   string            `json:"base_url" yaml:"base_url"`
	Templates []domain.Template `json:"templates" yaml:"templates"`
	Config    map[string]any    `json:"config" yaml:"config"`
}

type configFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Registry materializes source definitions loaded from config files or env.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
}

// LoadRegistry loads the source registry from a YAML/JSON file. ${VAR} references are
// expanded from the environment before decoding.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	parsed, err := parseRegistry([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}
	return NewRegistry(parsed.Sources...)
}

// NewRegistry validates and indexes the given sources.
func NewRegistry(srcs ...Source) (*Registry, error) {
	reg := &Registry{
		sources: make([]Source, len(srcs)),
	}
	seen := make(map[string]struct{}, len(srcs))
	for i := range srcs {
		src := sanitizeSource(srcs[i])
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[src.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		reg.sources[i] = src
		seen[src.ID] = struct{}{}
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return configFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (configFile, error) {
	var reg configFile
	if err := fn(data, &reg); err != nil {
		return configFile{}, fmt.Errorf("decode %s sources: %w", name, err)
	}
	return reg, nil
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	s.SourceURL = strings.TrimSpace(s.SourceURL)
	s.BaseURL = strings.TrimSpace(s.BaseURL)

	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Mode == "" {
		s.Mode = ModeTimestampLog
	}
	if s.BaseURL == "" {
		if u, err := url.Parse(s.SourceURL); err == nil && u.Host != "" {
			s.BaseURL = u.Scheme + "://" + u.Host + "/"
		}
	}
	if s.Config == nil {
		s.Config = map[string]any{}
	}

	templates := make([]domain.Template, 0, len(s.Templates))
	for _, t := range s.Templates {
		t.Match = strings.TrimSpace(t.Match)
		t.Name = strings.TrimSpace(t.Name)
		if t.Match == "" {
			continue
		}
		if t.Name == "" {
			t.Name = t.Match
		}
		templates = append(templates, t)
	}
	if len(templates) == 0 && s.Mode == ModeTimestampLog {
		templates = append(templates, DefaultTemplates...)
	}
	s.Templates = templates

	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if strings.ContainsAny(s.ID, `/\ `) {
		return fmt.Errorf("id %q must not contain slashes or spaces", s.ID)
	}
	if s.SourceURL == "" {
		return fmt.Errorf("source_url is required for source %q", s.ID)
	}
	u, err := url.Parse(s.SourceURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("source_url for source %q must be an absolute URL", s.ID)
	}
	switch s.Mode {
	case ModeTimestampLog, ModePageHash:
	default:
		return fmt.Errorf("unsupported mode %q for source %q", s.Mode, s.ID)
	}
	return nil
}

// All returns all configured sources in declaration order.
func (r *Registry) All() []Source {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ResolveLink joins a relative document link onto the source's base URL.
func (s Source) ResolveLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", errors.New("document link is empty")
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse document link %q: %w", link, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("source %q has no usable base_url", s.ID)
	}
	return base.ResolveReference(ref).String(), nil
}

// ParseTemplates turns "Name=Match,Other Match" into templates; entries without a name use the match text.
func ParseTemplates(raw string) []domain.Template {
	var out []domain.Template
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, match, found := strings.Cut(part, "=")
		if !found {
			match = name
		}
		name, match = strings.TrimSpace(name), strings.TrimSpace(match)
		if match == "" {
			continue
		}
		out = append(out, domain.Template{Name: name, Match: match})
	}
	return out
}
