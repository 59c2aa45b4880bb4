// File: internal/browser/manager.go

// Package browser owns the headless browser process lifecycle. A Manager
// launches a single Chrome instance; sessions are isolated tabs derived
// from it, each carrying the same persona.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
)

// launchProbeTimeout bounds the startup health check.
const launchProbeTimeout = 30 * time.Second

// Manager handles the lifecycle of the browser process.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process. All session tabs derive
	// from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	persona Persona

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser"),
		cfg:     cfg,
		persona: DefaultPersona(),
	}

	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator",
		zap.Bool("headless", m.cfg.Headless))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// Probe the process with a throwaway tab before handing out sessions.
	probeCtx, cancelProbe := context.WithTimeout(allocCtx, launchProbeTimeout)
	probeCtx, cancelProbeTab := chromedp.NewContext(probeCtx)
	defer cancelProbeTab()
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched and responsive")
	return nil
}

// buildAllocatorOptions assembles the launch flags. The automation banner
// and navigator.webdriver both trip the panel's challenge provider, so the
// defaults are filtered and patched accordingly.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.Flag("lang", "ja-JP"),
		chromedp.UserAgent(m.persona.UserAgent),
	)

	if m.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(m.cfg.ProxyURL))
	}

	// Custom arguments pass through as-is.
	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Containerized Linux needs the sandbox relaxed.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// Session is one isolated tab.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSession opens a fresh tab with the persona applied.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		m.logger.Sugar().Debugf(format, args...)
	}))

	if err := chromedp.Run(tabCtx, m.persona.Apply(m.logger)); err != nil {
		cancel()
		return nil, fmt.Errorf("applying persona: %w", err)
	}

	m.wg.Add(1)
	m.logger.Debug("Browser session opened")
	return &Session{ctx: tabCtx, cancel: cancel, wg: &m.wg}, nil
}

// Context returns the tab's chromedp context for running actions.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.wg.Done()
}

// Shutdown waits for open sessions to close, bounded by the caller's
// deadline, then terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser shutdown initiated, waiting for open sessions")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded, forcing browser termination", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
