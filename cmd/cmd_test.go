// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/notify"
	"github.com/nkrsz/renewctl/internal/observability"
	"github.com/nkrsz/renewctl/internal/renewal"
	"github.com/nkrsz/renewctl/internal/report"
	"go.uber.org/zap"
)

// resetForTest resets the process-wide state the commands lean on.
func resetForTest(t *testing.T) {
	t.Helper()

	viper.Reset()
	viper.SetConfigName("a-config-file-that-does-not-exist")
	cfgFile = ""
	observability.ResetForTest()
	t.Cleanup(func() {
		viper.Reset()
		observability.ResetForTest()
	})
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestStatusCmd_PrintsCachedRun(t *testing.T) {
	resetForTest(t)

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	reporter := report.NewReporter(config.ReportConfig{
		CachePath:  cachePath,
		StatusPath: filepath.Join(dir, "STATUS.md"),
	}, "40124478", zap.NewNop())
	reporter.Report(renewal.Outcome{
		Status:       renewal.StatusSuccess,
		ExpiryBefore: renewal.ExpiryRecord{Date: time.Date(2024, 6, 10, 0, 0, 0, 0, renewal.JST), Source: "detail-page"},
		FinishedAt:   time.Date(2024, 6, 9, 3, 0, 0, 0, time.UTC),
	})

	t.Setenv("RENEWCTL_REPORT_CACHE_PATH", cachePath)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"status"})

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Success")
	assert.Contains(t, out.String(), "2024-06-10")
	assert.Contains(t, out.String(), "40124478")
}

func TestStatusCmd_MissingCache(t *testing.T) {
	resetForTest(t)

	dir := t.TempDir()
	t.Setenv("RENEWCTL_REPORT_CACHE_PATH", filepath.Join(dir, "nope.json"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"status"})

	err := rootCmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}

// A run that dies before the workflow starts, for example because the
// browser would not launch, must still leave the cache, the status file,
// and a notification behind.
func TestReportFailure_WritesArtifactsAndNotifies(t *testing.T) {
	resetForTest(t)

	var sent atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent.Add(1)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer api.Close()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	statusPath := filepath.Join(dir, "STATUS.md")
	reporter := report.NewReporter(config.ReportConfig{
		CachePath:  cachePath,
		StatusPath: statusPath,
	}, "40124478", zap.NewNop())
	notifier := notify.NewNotifier(config.NotifyConfig{
		TelegramToken:  "123:abc",
		TelegramChatID: "99",
	}, api.Client(), zap.NewNop()).WithAPIBase(api.URL)

	startedAt := time.Now().Add(-2 * time.Second)
	outcome := reportFailure(context.Background(), reporter, notifier, startedAt,
		"browser launch failed", errors.New("chrome executable not found"))

	assert.Equal(t, renewal.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorDetail, "browser launch failed")
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, startedAt, outcome.StartedAt)
	assert.False(t, outcome.FinishedAt.IsZero())

	cache, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Contains(t, string(cache), string(renewal.StatusFailed))

	status, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	assert.Contains(t, string(status), "40124478")

	assert.Equal(t, int32(1), sent.Load())
}

func TestRenewCmd_RequiresCredentials(t *testing.T) {
	resetForTest(t)
	t.Setenv("RENEWCTL_ACCOUNT_EMAIL", "")
	t.Setenv("RENEWCTL_ACCOUNT_PASSWORD", "")
	t.Setenv("RENEWCTL_ACCOUNT_VPS_ID", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"renew"})

	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.email")
}
