// File: internal/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkrsz/renewctl/internal/config"
)

func newViperWithDefaults() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "renewctl", cfg.Logger.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.Browser.WaitTimeout)
	assert.False(t, cfg.Browser.Headless, "headless must default to off for the interactive challenge")
	assert.Equal(t, 20*time.Second, cfg.Solver.OCRTimeout)
	assert.Equal(t, 2*time.Second, cfg.Solver.OCRRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Solver.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.Solver.MaxWait)
	assert.Equal(t, "cache.json", cfg.Report.CachePath)
	assert.Equal(t, "STATUS.md", cfg.Report.StatusPath)
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty base url", func(c *config.Config) { c.Panel.BaseURL = "" }},
		{"zero wait timeout", func(c *config.Config) { c.Browser.WaitTimeout = 0 }},
		{"zero poll interval", func(c *config.Config) { c.Solver.PollInterval = 0 }},
		{"zero max wait", func(c *config.Config) { c.Solver.MaxWait = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAccount(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.Error(t, cfg.ValidateAccount(), "empty credentials must not pass")

	cfg.Account.Email = "user@example.com"
	cfg.Account.Password = "hunter2"
	assert.Error(t, cfg.ValidateAccount(), "missing vps id must not pass")

	cfg.Account.VPSID = "40124478"
	assert.NoError(t, cfg.ValidateAccount())
}

func TestNewConfigFromViper_EnvOverride(t *testing.T) {
	t.Setenv("RENEWCTL_ACCOUNT_PASSWORD", "from-env")

	v := newViperWithDefaults()
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account.Password)
}

func TestPanelURLs(t *testing.T) {
	p := config.PanelConfig{BaseURL: "https://panel.example"}

	assert.Equal(t, "https://panel.example/login/xvps/", p.LoginURL())
	assert.Equal(t, "https://panel.example/xvps/server/detail?id=42", p.DetailURL("42"))
	assert.Equal(t, "https://panel.example/xvps/server/freevps/extend/index?id_vps=42", p.ExtendURL("42"))
}

func TestNotifyEnabled(t *testing.T) {
	assert.False(t, config.NotifyConfig{}.Enabled())
	assert.False(t, config.NotifyConfig{TelegramToken: "t"}.Enabled())
	assert.True(t, config.NotifyConfig{TelegramToken: "t", TelegramChatID: "c"}.Enabled())
}
