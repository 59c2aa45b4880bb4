// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Components receive the
// section they need at construction and never read the environment directly.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Panel   PanelConfig   `mapstructure:"panel" yaml:"panel"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Solver  SolverConfig  `mapstructure:"solver" yaml:"solver"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AccountConfig identifies the control-panel account being renewed.
type AccountConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"-"`
	VPSID    string `mapstructure:"vps_id" yaml:"vps_id"`
}

// PanelConfig holds the control-panel entry points. The detail and extend
// pages are addressed per VPS id.
type PanelConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// LoginURL returns the panel login page.
func (p PanelConfig) LoginURL() string {
	return p.BaseURL + "/login/xvps/"
}

// DetailURL returns the server detail page for the given VPS id.
func (p PanelConfig) DetailURL(vpsID string) string {
	return fmt.Sprintf("%s/xvps/server/detail?id=%s", p.BaseURL, vpsID)
}

// ExtendURL returns the direct renewal-form URL for the given VPS id.
func (p PanelConfig) ExtendURL(vpsID string) string {
	return fmt.Sprintf("%s/xvps/server/freevps/extend/index?id_vps=%s", p.BaseURL, vpsID)
}

// BrowserConfig holds settings for the browser session.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	ProxyURL      string        `mapstructure:"proxy_url" yaml:"proxy_url"`
	Screenshots   bool          `mapstructure:"screenshots" yaml:"screenshots"`
	ScreenshotDir string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	Args          []string      `mapstructure:"args" yaml:"args"`
}

// SolverConfig configures the two external challenge-solving services.
// An empty ClientKey disables the interactive solver entirely.
type SolverConfig struct {
	OCREndpoint   string        `mapstructure:"ocr_endpoint" yaml:"ocr_endpoint"`
	OCRTimeout    time.Duration `mapstructure:"ocr_timeout" yaml:"ocr_timeout"`
	OCRRetryDelay time.Duration `mapstructure:"ocr_retry_delay" yaml:"ocr_retry_delay"`
	ClientKey     string        `mapstructure:"client_key" yaml:"-"`
	CreateTaskURL string        `mapstructure:"create_task_url" yaml:"create_task_url"`
	ResultURL     string        `mapstructure:"result_url" yaml:"result_url"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxWait       time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

// NotifyConfig configures the Telegram notifier. Both fields must be set for
// notifications to be sent; otherwise the notifier degrades to a no-op.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token" yaml:"-"`
	TelegramChatID string `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id"`
}

// Enabled reports whether the notifier has enough configuration to operate.
func (n NotifyConfig) Enabled() bool {
	return n.TelegramToken != "" && n.TelegramChatID != ""
}

// ReportConfig holds the paths of the persisted run artifacts.
type ReportConfig struct {
	CachePath  string `mapstructure:"cache_path" yaml:"cache_path"`
	StatusPath string `mapstructure:"status_path" yaml:"status_path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "renewctl")
	v.SetDefault("logger.log_file", "renewctl.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Panel --
	v.SetDefault("panel.base_url", "https://secure.xserver.ne.jp/xapanel")

	// -- Browser --
	// Headless sessions are routinely flagged by the interactive challenge,
	// so the default is a visible browser.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.wait_timeout", "30s")
	v.SetDefault("browser.screenshots", true)
	v.SetDefault("browser.screenshot_dir", "shots")

	// -- Solver --
	v.SetDefault("solver.ocr_timeout", "20s")
	v.SetDefault("solver.ocr_retry_delay", "2s")
	v.SetDefault("solver.create_task_url", "https://api.yescaptcha.com/createTask")
	v.SetDefault("solver.result_url", "https://api.yescaptcha.com/getTaskResult")
	v.SetDefault("solver.poll_interval", "5s")
	v.SetDefault("solver.max_wait", "120s")

	// -- Report --
	v.SetDefault("report.cache_path", "cache.json")
	v.SetDefault("report.status_path", "STATUS.md")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("account.email", "RENEWCTL_ACCOUNT_EMAIL")
	v.BindEnv("account.password", "RENEWCTL_ACCOUNT_PASSWORD")
	v.BindEnv("solver.client_key", "RENEWCTL_SOLVER_CLIENT_KEY")
	v.BindEnv("notify.telegram_token", "RENEWCTL_NOTIFY_TELEGRAM_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values. Optional integrations
// (proxy, notifier, interactive solver) are allowed to be absent; only
// settings the run cannot function without are rejected.
func (c *Config) Validate() error {
	if c.Panel.BaseURL == "" {
		return fmt.Errorf("panel.base_url must not be empty")
	}
	if c.Browser.WaitTimeout <= 0 {
		return fmt.Errorf("browser.wait_timeout must be a positive duration")
	}
	if c.Browser.ProxyURL != "" {
		if _, err := url.Parse(c.Browser.ProxyURL); err != nil {
			return fmt.Errorf("browser.proxy_url is not a valid URL: %w", err)
		}
	}
	if c.Solver.OCRRetryDelay <= 0 {
		return fmt.Errorf("solver.ocr_retry_delay must be a positive duration")
	}
	if c.Solver.PollInterval <= 0 {
		return fmt.Errorf("solver.poll_interval must be a positive duration")
	}
	if c.Solver.MaxWait <= 0 {
		return fmt.Errorf("solver.max_wait must be a positive duration")
	}
	return nil
}

// ValidateAccount checks the fields a renewal run cannot start without.
// Kept separate from Validate so diagnostic commands (status) work without
// credentials configured.
func (c *Config) ValidateAccount() error {
	if c.Account.Email == "" || c.Account.Password == "" {
		return fmt.Errorf("account.email and account.password are required")
	}
	if c.Account.VPSID == "" {
		return fmt.Errorf("account.vps_id is required")
	}
	return nil
}
