package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/pkg/logger"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logger     logger.Config    `yaml:"logger"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin"`
	Content    ContentConfig    `yaml:"content"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Limits     LimitsConfig     `yaml:"limits"`
	Engagement EngagementConfig `yaml:"engagement"`
	Network    NetworkConfig    `yaml:"network"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	Mode       string `yaml:"mode"`
	TOTPSecret string `yaml:"totp_secret"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	APIBase string `yaml:"api_base"`
}

type LinkedInConfig struct {
	AccessToken string `yaml:"access_token"`
	APIBase     string `yaml:"api_base"`
	Version     string `yaml:"version"`
}

type ContentConfig struct {
	Topics   []string `yaml:"topics"`
	Tone     string   `yaml:"tone"`
	Length   string   `yaml:"length"`
	Hashtags []string `yaml:"hashtags"`
}

/// ScheduleSlot is one fixed weekly posting slot, e.g. {monday, "09:15", post}.
type ScheduleSlot struct {
	Day  string `yaml:"day"`
	At   string `yaml:"at"`
	Kind string `yaml:"kind"`
}

type ScheduleConfig struct {
	Entries   []ScheduleSlot `yaml:"entries"`
	Tolerance string         `yaml:"tolerance"`
	ClaimTTL  string         `yaml:"claim_ttl"`
}

func (c *ScheduleConfig) ToleranceDuration() time.Duration {
	d, err := time.ParseDuration(c.Tolerance)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

func (c *ScheduleConfig) ClaimTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.ClaimTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ActionLimit bounds one action kind: at most DailyCap admissions per UTC
// day, at least MinDelay between two admissions, and a randomized pre-call
// delay sampled from [MinDelay, MaxDelay].
type ActionLimit struct {
	DailyCap int    `yaml:"daily_cap"`
	MinDelay string `yaml:"min_delay"`
	MaxDelay string `yaml:"max_delay"`
}

func (l ActionLimit) MinDelayDuration() time.Duration {
	d, _ := time.ParseDuration(l.MinDelay)
	return d
}

func (l ActionLimit) MaxDelayDuration() time.Duration {
	d, _ := time.ParseDuration(l.MaxDelay)
	return d
}

type LimitsConfig struct {
	Post       ActionLimit `yaml:"post"`
	Connection ActionLimit `yaml:"connection"`
	Engagement ActionLimit `yaml:"engagement"`
}

func (c *LimitsConfig) ForKind(kind models.ActionKind) ActionLimit {
	switch kind {
	case models.ActionConnection:
		return c.Connection
	case models.ActionEngagement:
		return c.Engagement
	default:
		return c.Post
	}
}

type EngagementConfig struct {
	FetchLimit  int    `yaml:"fetch_limit"`
	PerCycleCap int    `yaml:"per_cycle_cap"`
	Interval    string `yaml:"interval"`
}

type NetworkConfig struct {
	Prospects  []models.Prospect `yaml:"prospects"`
	BatchLimit int               `yaml:"batch_limit"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Gemini.APIBase == "" {
		cfg.Gemini.APIBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.LinkedIn.APIBase == "" {
		cfg.LinkedIn.APIBase = "https://api.linkedin.com/v2"
	}
	if cfg.LinkedIn.Version == "" {
		cfg.LinkedIn.Version = "202304"
	}
	if len(cfg.Content.Topics) == 0 {
		cfg.Content.Topics = []string{"AI", "Technology", "Business"}
	}
	if cfg.Content.Tone == "" {
		cfg.Content.Tone = "professional"
	}
	if cfg.Content.Length == "" {
		cfg.Content.Length = "medium"
	}
	if cfg.Schedule.Tolerance == "" {
		cfg.Schedule.Tolerance = "2m"
	}
	if cfg.Schedule.ClaimTTL == "" {
		cfg.Schedule.ClaimTTL = "15m"
	}
	applyLimitDefaults(&cfg.Limits.Post, 3, "1m", "3m")
	applyLimitDefaults(&cfg.Limits.Connection, 20, "1m", "3m")
	applyLimitDefaults(&cfg.Limits.Engagement, 15, "1m", "3m")
	if cfg.Engagement.FetchLimit == 0 {
		cfg.Engagement.FetchLimit = 5
	}
	if cfg.Engagement.PerCycleCap == 0 {
		cfg.Engagement.PerCycleCap = 3
	}
	if cfg.Engagement.Interval == "" {
		cfg.Engagement.Interval = "3h"
	}
	if cfg.Network.BatchLimit == 0 {
		cfg.Network.BatchLimit = 5
	}
}

func applyLimitDefaults(l *ActionLimit, dailyCap int, minDelay, maxDelay string) {
	if l.DailyCap == 0 {
		l.DailyCap = dailyCap
	}
	if l.MinDelay == "" {
		l.MinDelay = minDelay
	}
	if l.MaxDelay == "" {
		l.MaxDelay = maxDelay
	}
}

// Validate checks time formats and numeric ranges so a bad config fails a
// run at startup rather than mid-action.
func (c *Config) Validate() error {
	for _, slot := range c.Schedule.Entries {
		if _, err := time.Parse("15:04", slot.At); err != nil {
			return fmt.Errorf("invalid time format in schedule entry: %q", slot.At)
		}
		// Only posting runs off the weekly schedule; engagement and
		// connection actions have their own triggers.
		if slot.Kind != string(models.ActionPost) {
			return fmt.Errorf("schedule entries only support kind %q, got %q", models.ActionPost, slot.Kind)
		}
	}
	if _, err := time.ParseDuration(c.Schedule.Tolerance); err != nil {
		return fmt.Errorf("invalid schedule tolerance: %w", err)
	}
	for _, kind := range []models.ActionKind{models.ActionPost, models.ActionConnection, models.ActionEngagement} {
		limit := c.Limits.ForKind(kind)
		if limit.DailyCap < 0 || limit.DailyCap > 100 {
			return fmt.Errorf("daily cap for %s must be between 0 and 100", kind)
		}
		minD, err := time.ParseDuration(limit.MinDelay)
		if err != nil {
			return fmt.Errorf("invalid min delay for %s: %w", kind, err)
		}
		maxD, err := time.ParseDuration(limit.MaxDelay)
		if err != nil {
			return fmt.Errorf("invalid max delay for %s: %w", kind, err)
		}
		if minD < 0 || minD > maxD {
			return fmt.Errorf("min delay for %s must be between 0 and max delay", kind)
		}
	}
	if len(c.Content.Topics) == 0 {
		return fmt.Errorf("at least one content topic must be specified")
	}
	return nil
}
