package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name" validate:"required"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" validate:"gte=1"`
	LogMaxBackups int    `mapstructure:"log_max_backups" validate:"gte=0"`

	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file" validate:"required"`
	SourceURL      string `mapstructure:"source_url" validate:"omitempty,url"`
	SourceBaseURL  string `mapstructure:"source_base_url" validate:"omitempty,url"`
	TitleTemplates string `mapstructure:"title_templates"`
	WatchMode      string `mapstructure:"watch_mode" validate:"oneof=timestamp_log page_hash"`
	Timezone       string `mapstructure:"timezone" validate:"required"`

	PollIntervalMinutes int64  `mapstructure:"poll_interval_minutes" validate:"gte=1"`
	TickSeconds         int64  `mapstructure:"tick_seconds" validate:"gte=1"`
	ScheduleMode        string `mapstructure:"schedule_mode" validate:"oneof=fixed_rate fixed_delay"`

	StorageType           string `mapstructure:"storage_type" validate:"oneof=file bbolt memory"`
	StateDir              string `mapstructure:"state_dir"`
	BBoltPath             string `mapstructure:"bbolt_path"`
	DeliveryTTLSeconds    int64  `mapstructure:"delivery_ttl_seconds" validate:"gte=1"`
	StorageCleanupSeconds int64  `mapstructure:"storage_cleanup_interval_seconds" validate:"gte=1"`

	HTTPTimeoutSeconds int64  `mapstructure:"http_timeout_seconds" validate:"gte=1"`
	ItemTimeoutSeconds int64  `mapstructure:"item_timeout_seconds" validate:"gte=1"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes" validate:"gte=0"`
	DownloadDir        string `mapstructure:"download_dir" validate:"required"`

	ConvertMode       string `mapstructure:"convert_mode" validate:"oneof=image document"`
	RenderPage        int    `mapstructure:"render_page" validate:"gte=0"`
	RenderDPI         int    `mapstructure:"render_dpi" validate:"gte=36,lte=600"`
	MaxImageDimension int    `mapstructure:"max_image_dimension" validate:"gte=64"`
	PdftoppmPath      string `mapstructure:"pdftoppm_path"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	PollInterval           time.Duration  `mapstructure:"-"`
	TickInterval           time.Duration  `mapstructure:"-"`
	DeliveryTTL            time.Duration  `mapstructure:"-"`
	StorageCleanupInterval time.Duration  `mapstructure:"-"`
	HTTPTimeout            time.Duration  `mapstructure:"-"`
	ItemTimeout            time.Duration  `mapstructure:"-"`
	Location               *time.Location `mapstructure:"-"`
}

var defaults = map[string]any{
	"app_name":        "fia-docwatch",
	"app_env":         "development",
	"log_level":       "info",
	"log_file":        "",
	"log_max_size_mb": 50,
	"log_max_backups": 5,

	"sources_file":    "./configs/sources.yaml",
	"publishers_file": "./configs/publishers.yaml",
	"source_url":      "",
	"source_base_url": "",
	"title_templates": "",
	"watch_mode":      "timestamp_log",
	"timezone":        "Europe/Paris",

	"poll_interval_minutes": 60,
	"tick_seconds":          240,
	"schedule_mode":         "fixed_rate",

	"storage_type":                     "file",
	"state_dir":                        "./data/state",
	"bbolt_path":                       "./data/docwatch.db",
	"delivery_ttl_seconds":             int64((30 * 24 * time.Hour) / time.Second),
	"storage_cleanup_interval_seconds": int64((12 * time.Hour) / time.Second),

	"http_timeout_seconds": int64(sources.DefaultFetchTimeout / time.Second),
	"item_timeout_seconds": 120,
	"max_body_bytes":       sources.DefaultMaxBodyBytes,
	"download_dir":         "./data/documents",

	"convert_mode":        "image",
	"render_page":         1,
	"render_dpi":          110,
	"max_image_dimension": 2560,
	"pdftoppm_path":       "pdftoppm",

	"metrics_addr": ":9090",
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	cfg.PollInterval = time.Duration(cfg.PollIntervalMinutes) * time.Minute
	cfg.TickInterval = time.Duration(cfg.TickSeconds) * time.Second
	cfg.DeliveryTTL = time.Duration(cfg.DeliveryTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	cfg.ItemTimeout = time.Duration(cfg.ItemTimeoutSeconds) * time.Second

	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.WatchMode = strings.ToLower(strings.TrimSpace(cfg.WatchMode))
	cfg.ScheduleMode = strings.ToLower(strings.TrimSpace(cfg.ScheduleMode))
	cfg.StorageType = strings.ToLower(strings.TrimSpace(cfg.StorageType))
	cfg.ConvertMode = strings.ToLower(strings.TrimSpace(cfg.ConvertMode))
	cfg.SourceURL = strings.TrimSpace(cfg.SourceURL)
	cfg.SourceBaseURL = strings.TrimSpace(cfg.SourceBaseURL)
	cfg.Timezone = strings.TrimSpace(cfg.Timezone)
}

// validate applies struct tag rules, then the checks that span several fields.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", e.Field(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.StorageType {
	case "file":
		if strings.TrimSpace(cfg.StateDir) == "" {
			return fmt.Errorf("invalid config: state_dir is required for file storage")
		}
	case "bbolt":
		if strings.TrimSpace(cfg.BBoltPath) == "" {
			return fmt.Errorf("invalid config: bbolt_path is required for bbolt storage")
		}
	}
	if cfg.TickSeconds > cfg.PollIntervalMinutes*60 {
		return fmt.Errorf("invalid config: tick_seconds (%d) exceeds poll interval (%d minutes)", cfg.TickSeconds, cfg.PollIntervalMinutes)
	}
	return nil
}
