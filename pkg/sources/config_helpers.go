package sources

import "strings"

// ConfigString returns the trimmed string value for key from source.Config or a fallback.
func ConfigString(cfg Source, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
	ConfigRowSelectorKey    = "row_selector"
	ConfigDateSelectorKey   = "date_selector"
	ConfigTitleSelectorKey  = "title_selector"

	// DefaultUserAgent is a desktop browser UA; the FIA site rejects obvious bots.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Headers builds the browser-like request headers for a source (skips empty values).
func Headers(cfg Source) map[string]string {
	headers := make(map[string]string, 4)

	headers["User-Agent"] = ConfigString(cfg, ConfigUserAgentKey, DefaultUserAgent)
	if v := ConfigString(cfg, ConfigAcceptKey, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(cfg, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}

	return headers
}
