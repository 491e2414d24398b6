package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jgoulah/dormpower/pkg/models"
)

const (
	defaultBaseURL   = "http://hydz.xsyu.edu.cn/wxpay/homeinfo.aspx"
	defaultReferer   = "https://hydz.xsyu.edu.cn/wxpay/homeinfo.aspx"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config holds the application configuration
type Config struct {
	Dorms         []models.Dorm `yaml:"dorms"`
	DefaultDorm   string        `yaml:"default_dorm,omitempty"` // room code or name
	Fetch         FetchConfig   `yaml:"fetch,omitempty"`
	WindowDays    int           `yaml:"window_days,omitempty"`    // Trailing window for predictions (fallback: 30)
	LowThreshold  float64       `yaml:"low_threshold,omitempty"`  // kWh below which the balance is "low" (fallback: 10)
	WarnThreshold float64       `yaml:"warn_threshold,omitempty"` // kWh below which the balance is "warning" (fallback: 30)
	Schedule      string        `yaml:"schedule,omitempty"`       // cron spec for watch (fallback: every 30 minutes)
	MetricsAddr   string        `yaml:"metrics_addr,omitempty"`
	HomeAssistant HAConfig      `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig    `yaml:"mqtt,omitempty"`
}

// FetchConfig controls how the utility site is queried
type FetchConfig struct {
	BaseURL    string        `yaml:"base_url,omitempty"`
	HistoryURL string        `yaml:"history_url,omitempty"` // settlement list, same xid/type query
	UserAgent  string        `yaml:"user_agent,omitempty"`
	Referer    string        `yaml:"referer,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Browser    bool          `yaml:"browser,omitempty"` // render with headless Chrome instead of plain HTTP
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`                      // e.g., "http://homeassistant.local:8123"
	Token        string `yaml:"token"`                    // Long-lived access token
	EntityID     string `yaml:"entity_id"`                // e.g., "sensor.dorm_balance"
	DaysEntityID string `yaml:"days_entity_id,omitempty"` // e.g., "sensor.dorm_days_remaining"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file and applies DORMPOWER_* environment overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DORMPOWER_DORM_ID"); v != "" {
		d := models.Dorm{ID: v, Type: os.Getenv("DORMPOWER_DORM_TYPE"), Name: os.Getenv("DORMPOWER_DORM_NAME")}
		c.Dorms = append([]models.Dorm{d}, c.Dorms...)
		c.DefaultDorm = v
	}
	if v := os.Getenv("DORMPOWER_BASE_URL"); v != "" {
		c.Fetch.BaseURL = v
	}
	if v := os.Getenv("DORMPOWER_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv("DORMPOWER_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("DORMPOWER_HA_TOKEN"); v != "" {
		c.HomeAssistant.Token = v
	}
	if v := os.Getenv("DORMPOWER_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("DORMPOWER_BROWSER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Fetch.Browser = b
		}
	}
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks fields that every command depends on
func (c *Config) Validate() error {
	if len(c.Dorms) == 0 {
		return fmt.Errorf("no dorms configured: add a dorms entry to config.yaml or set DORMPOWER_DORM_ID")
	}
	seen := make(map[string]bool, len(c.Dorms))
	for i, d := range c.Dorms {
		if d.ID == "" {
			return fmt.Errorf("dorms[%d]: id is required", i)
		}
		if d.Type == "" {
			return fmt.Errorf("dorms[%d] (%s): type is required", i, d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("dorms[%d]: duplicate id %s", i, d.ID)
		}
		seen[d.ID] = true
	}
	if c.GetLowThreshold() > c.GetWarnThreshold() {
		return fmt.Errorf("low_threshold (%.1f) must not exceed warn_threshold (%.1f)", c.GetLowThreshold(), c.GetWarnThreshold())
	}
	return nil
}

// FindDorm resolves a room code or name; an empty key selects the default dorm
func (c *Config) FindDorm(key string) (models.Dorm, error) {
	if key == "" {
		key = c.DefaultDorm
	}
	if key == "" {
		if len(c.Dorms) == 1 {
			return c.Dorms[0], nil
		}
		return models.Dorm{}, fmt.Errorf("several dorms configured: pass one or set default_dorm")
	}
	for _, d := range c.Dorms {
		if d.ID == key || strings.EqualFold(d.Name, key) {
			return d, nil
		}
	}
	return models.Dorm{}, fmt.Errorf("unknown dorm: %s", key)
}

// GetBaseURL returns the live-balance page URL
func (c *Config) GetBaseURL() string {
	if c.Fetch.BaseURL == "" {
		return defaultBaseURL
	}
	return c.Fetch.BaseURL
}

// GetUserAgent returns the User-Agent sent to the site
func (c *Config) GetUserAgent() string {
	if c.Fetch.UserAgent == "" {
		return defaultUserAgent
	}
	return c.Fetch.UserAgent
}

// GetReferer returns the Referer sent to the site
func (c *Config) GetReferer() string {
	if c.Fetch.Referer == "" {
		return defaultReferer
	}
	return c.Fetch.Referer
}

// GetTimeout returns the per-request timeout with a default of 15 seconds
func (c *Config) GetTimeout() time.Duration {
	if c.Fetch.Timeout <= 0 {
		return 15 * time.Second
	}
	return c.Fetch.Timeout
}

// GetWindow returns the prediction window with a default of 30 days
func (c *Config) GetWindow() time.Duration {
	if c.WindowDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// GetLowThreshold returns the low-balance threshold in kWh
func (c *Config) GetLowThreshold() float64 {
	if c.LowThreshold <= 0 {
		return 10
	}
	return c.LowThreshold
}

// GetWarnThreshold returns the warning threshold in kWh
func (c *Config) GetWarnThreshold() float64 {
	if c.WarnThreshold <= 0 {
		return 30
	}
	return c.WarnThreshold
}

// GetSchedule returns the watch cron spec (seconds field included)
func (c *Config) GetSchedule() string {
	if c.Schedule == "" {
		return "0 */30 * * * *"
	}
	return c.Schedule
}

// GetMetricsAddr returns the listen address for /metrics
func (c *Config) GetMetricsAddr() string {
	if c.MetricsAddr == "" {
		return "127.0.0.1:9464"
	}
	return c.MetricsAddr
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "dormpower"
	}
	return c.MQTT.TopicPrefix
}
