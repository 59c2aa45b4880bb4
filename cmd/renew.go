// File: cmd/renew.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/browser"
	"github.com/nkrsz/renewctl/internal/challenge"
	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/netutil"
	"github.com/nkrsz/renewctl/internal/notify"
	"github.com/nkrsz/renewctl/internal/observability"
	"github.com/nkrsz/renewctl/internal/panel"
	"github.com/nkrsz/renewctl/internal/renewal"
	"github.com/nkrsz/renewctl/internal/report"
)

// shutdownGrace bounds browser teardown after the run completes.
const shutdownGrace = 15 * time.Second

// newRenewCmd creates and configures the `renew` command.
func newRenewCmd() *cobra.Command {
	renewCmd := &cobra.Command{
		Use:   "renew",
		Short: "Runs one renewal attempt against the control panel",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context from Execute is signal-aware.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.ValidateAccount(); err != nil {
				return err
			}

			outcome, err := runRenewal(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if outcome.Status.IsError() {
				return fmt.Errorf("run ended with status %s: %s", outcome.Status, outcome.ErrorDetail)
			}
			return nil
		},
	}

	renewCmd.Flags().Bool("headless", false, "run the browser headless")
	renewCmd.Flags().String("vps-id", "", "VPS identifier to renew")
	return renewCmd
}

// runRenewal wires the collaborators and drives one workflow run. The
// outcome is always reported and notified, whatever its terminal status.
func runRenewal(ctx context.Context, cfg *config.Config, logger *zap.Logger) (renewal.Outcome, error) {
	startedAt := time.Now()

	// Shared HTTP client for the solver and notifier calls.
	clientCfg := netutil.NewDefaultClientConfig(logger)
	if cfg.Browser.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.Browser.ProxyURL)
		if err != nil {
			return renewal.Outcome{}, fmt.Errorf("parsing proxy URL: %w", err)
		}
		clientCfg.ProxyURL = proxyURL
	}
	httpClient := netutil.NewClient(clientCfg)

	reporter := report.NewReporter(cfg.Report, cfg.Account.VPSID, logger)
	notifier := notify.NewNotifier(cfg.Notify, httpClient, logger)
	if prev, err := reporter.Load(); err == nil {
		logger.Info("Previous run on record",
			zap.String("status", prev.Status),
			zap.String("last_expiry", prev.LastExpiry),
			zap.String("last_check", prev.LastCheck))
	}

	// The browser is the resource that must never leak; teardown is
	// deferred before anything can fail past this point.
	mgr, err := browser.NewManager(ctx, cfg.Browser, logger)
	if err != nil {
		return reportFailure(ctx, reporter, notifier, startedAt, "browser launch failed", err), nil
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported an error", zap.Error(err))
		}
	}()

	session, err := mgr.NewSession(ctx)
	if err != nil {
		return reportFailure(ctx, reporter, notifier, startedAt, "browser session failed", err), nil
	}
	defer session.Close()

	surface := panel.NewSurface(session.Context(), cfg.Panel, cfg.Browser, cfg.Account.VPSID, logger)

	ocr := challenge.NewOCRClient(cfg.Solver, httpClient, logger)
	interactive := challenge.NewInteractiveClient(cfg.Solver, httpClient, logger)
	resolver := challenge.NewResolver(ocr, interactive, surface, logger)

	workflow := renewal.NewWorkflow(surface, resolver, cfg.Account, logger)
	outcome := workflow.Run(ctx)

	reporter.Report(outcome)
	notifier.Notify(ctx, outcome)

	return outcome, nil
}

// reportFailure turns an error from before the workflow could start into a
// terminal Failed outcome and runs the reporting tail, so even a run that
// never reached the panel leaves the cache, status file, and notification
// behind.
func reportFailure(ctx context.Context, reporter *report.Reporter, notifier *notify.Notifier, startedAt time.Time, stage string, err error) renewal.Outcome {
	outcome := renewal.Outcome{
		RunID:       uuid.New().String(),
		Status:      renewal.StatusFailed,
		ErrorDetail: fmt.Sprintf("%s: %v", stage, err),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
	reporter.Report(outcome)
	notifier.Notify(ctx, outcome)
	return outcome
}

func init() {
	renewCmd := newRenewCmd()
	rootCmd.AddCommand(renewCmd)

	// Flag-to-config bindings shared with the config file and environment.
	_ = viper.BindPFlag("browser.headless", renewCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("account.vps_id", renewCmd.Flags().Lookup("vps-id"))
}
