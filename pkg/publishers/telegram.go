package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adda-Baaj/fia-docwatch/internal/convert"
	"github.com/Adda-Baaj/fia-docwatch/pkg/httpclient"
	"github.com/go-resty/resty/v2"
)

const (
	telegramCaptionLimit = 1024
	telegramMessageLimit = 4096
)

// telegramPublisher posts to a chat through the Bot API. Image artifacts go out as
// photos, PDFs as documents, and events without an artifact as plain messages.
type telegramPublisher struct {
	id                  string
	apiBase             string
	token               string
	chatID              string
	disableNotification bool
	client              *resty.Client
	log                 Logger
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func newTelegramPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Telegram == nil {
		return nil, fmt.Errorf("publisher %q missing telegram configuration", cfg.ID)
	}

	return &telegramPublisher{
		id:                  cfg.ID,
		apiBase:             cfg.Telegram.APIBase,
		token:               cfg.Telegram.Token,
		chatID:              cfg.Telegram.ChatID,
		disableNotification: cfg.Telegram.DisableNotification,
		client:              httpclient.NewRestyHTTPClient(time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second),
		log:                 ensureLogger(log),
	}, nil
}

func (t *telegramPublisher) ID() string   { return t.id }
func (t *telegramPublisher) Type() string { return TypeTelegram }

// Publish sends the event and fails unless the Bot API answers ok=true.
func (t *telegramPublisher) Publish(ctx context.Context, evt Event) error {
	form := map[string]string{
		"chat_id":              t.chatID,
		"disable_notification": strconv.FormatBool(t.disableNotification),
	}
	req := t.client.R().SetContext(ctx)

	var method string
	switch {
	case evt.ArtifactPath != "" && evt.ArtifactKind == string(convert.KindImage):
		method = "sendPhoto"
		form["caption"] = truncateRunes(evt.Caption, telegramCaptionLimit)
		req.SetFile("photo", evt.ArtifactPath)
	case evt.ArtifactPath != "":
		method = "sendDocument"
		form["caption"] = truncateRunes(evt.Caption, telegramCaptionLimit)
		req.SetFile("document", evt.ArtifactPath)
	default:
		method = "sendMessage"
		form["text"] = truncateRunes(messageText(evt), telegramMessageLimit)
	}
	req.SetFormData(form)

	resp, err := req.Post(t.apiBase + "/bot" + t.token + "/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, t.redact(err))
	}

	var out telegramResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode response: %w", method, resp.StatusCode(), err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram %s: status %d: error %d: %s", method, resp.StatusCode(), out.ErrorCode, out.Description)
	}

	t.log.InfoObj("telegram publisher delivered event", "publisher_telegram_delivery", map[string]any{
		"publisher_id": t.id,
		"event_id":     evt.ID,
		"method":       method,
	})
	return nil
}

// redact strips the bot token from transport errors, which embed the request URL.
func (t *telegramPublisher) redact(err error) error {
	if t.token == "" || !strings.Contains(err.Error(), t.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), t.token, "<token>"))
}

func messageText(evt Event) string {
	link := evt.DocumentURL
	if link == "" {
		link = evt.PageURL
	}
	if link == "" || strings.Contains(evt.Caption, link) {
		return evt.Caption
	}
	return evt.Caption + "\n" + link
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
