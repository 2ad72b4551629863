package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"noren/internal/model"
	"noren/internal/override"
)

type Config struct {
	Schedule struct {
		OpenTime      float64 `yaml:"open_time"`
		CloseTime     float64 `yaml:"close_time"`
		LastOrderTime float64 `yaml:"last_order_time"`
		ClosedWeekday int     `yaml:"closed_weekday"`
		Holidays      []struct {
			Start string `yaml:"start"`
			End   string `yaml:"end"`
		} `yaml:"holidays"`
	} `yaml:"schedule"`

	ContentService struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"content_service"`

	Override struct {
		RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
		SnapshotPath           string `yaml:"snapshot_path"`
		FailurePolicy          string `yaml:"failure_policy"`
	} `yaml:"override"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Status struct {
		FilePath string `yaml:"file_path"`
	} `yaml:"status"`

	Telegram struct {
		Enabled  bool    `yaml:"enabled"`
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		RetentionDays int    `yaml:"retention_days"`
		ExportPath    string `yaml:"export_path"`
	} `yaml:"audit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Schedule.OpenTime == 0 && cfg.Schedule.CloseTime == 0 {
		cfg.Schedule.OpenTime = 11
		cfg.Schedule.LastOrderTime = 20.5
		cfg.Schedule.CloseTime = 21
		cfg.Schedule.ClosedWeekday = 1
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/noren.db"
	}
	if cfg.Status.FilePath == "" {
		cfg.Status.FilePath = "data/status.json"
	}
	if cfg.Audit.RetentionDays <= 0 {
		cfg.Audit.RetentionDays = 31
	}

	return &cfg, nil
}

// WeeklySchedule builds the immutable weekly configuration, parsing the
// holiday date ranges.
func (c *Config) WeeklySchedule() (model.WeeklyScheduleConfig, error) {
	cfg := model.WeeklyScheduleConfig{
		OpenTime:      c.Schedule.OpenTime,
		CloseTime:     c.Schedule.CloseTime,
		LastOrderTime: c.Schedule.LastOrderTime,
		ClosedWeekday: time.Weekday(c.Schedule.ClosedWeekday),
	}
	for _, h := range c.Schedule.Holidays {
		start, err := time.ParseInLocation("2006-01-02", h.Start, time.Local)
		if err != nil {
			return cfg, fmt.Errorf("parse holiday start %q: %w", h.Start, err)
		}
		end, err := time.ParseInLocation("2006-01-02", h.End, time.Local)
		if err != nil {
			return cfg, fmt.Errorf("parse holiday end %q: %w", h.End, err)
		}
		cfg.Holidays = append(cfg.Holidays, model.HolidayRange{Start: start, End: end})
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RefreshInterval returns the configured refresh cap.
func (c *Config) RefreshInterval() time.Duration {
	if c.Override.RefreshIntervalSeconds <= 0 {
		return override.DefaultRefreshInterval
	}
	return time.Duration(c.Override.RefreshIntervalSeconds) * time.Second
}

// FailurePolicy returns the configured refresh-failure policy.
func (c *Config) FailurePolicy() override.FailurePolicy {
	if c.Override.FailurePolicy == string(override.PolicyClear) {
		return override.PolicyClear
	}
	return override.PolicyHold
}
