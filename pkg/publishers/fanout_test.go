package publishers

import (
	"context"
	"errors"
	"testing"
)

type stubPublisher struct {
	id     string
	typ    string
	err    error
	calls  int
	closed bool
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return s.typ }
func (s *stubPublisher) Publish(context.Context, Event) error {
	s.calls++
	return s.err
}
func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

func TestFanoutPublishAggregatesErrors(t *testing.T) {
	bad := &stubPublisher{id: "bad", typ: "http", err: errors.New("failed")}
	last := &stubPublisher{id: "last", typ: "telegram"}
	fanout := NewFanout([]Publisher{
		&stubPublisher{id: "ok", typ: "http"},
		bad,
		nil,
		last,
	})

	count, err := fanout.Publish(context.Background(), Event{})
	if count != 2 {
		t.Fatalf("expected 2 successes, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if last.calls != 1 {
		t.Fatalf("publishers after a failure must still run, got %d calls", last.calls)
	}
	if fanout.Size() != 3 {
		t.Fatalf("nil publishers must be dropped, size=%d", fanout.Size())
	}
}

func TestFanoutWithoutPublishersFails(t *testing.T) {
	if _, err := NewFanout(nil).Publish(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error when nothing can receive the event")
	}
}

func TestFanoutCloseClosesPublishers(t *testing.T) {
	p := &stubPublisher{id: "p", typ: "pubsub"}
	if err := NewFanout([]Publisher{p}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.closed {
		t.Fatalf("publisher was not closed")
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	pubs, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "http", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://example.com"}},
		{ID: "tg", Type: TypeTelegram, Telegram: &TelegramPublisherConfig{APIBase: "https://api.telegram.org", Token: "t", ChatID: "1"}},
		{ID: "stdout", Type: TypeLog},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 3 {
		t.Fatalf("expected 3 publishers, got %d", len(pubs))
	}
}

func TestBuildAllUnknownType(t *testing.T) {
	_, err := BuildAll(context.Background(), DefaultRegistry(), []PublisherConfig{{ID: "x", Type: "carrier-pigeon"}}, nil)
	if err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}
