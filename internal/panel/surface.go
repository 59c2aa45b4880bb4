// File: internal/panel/surface.go

// Package panel drives the control panel's pages over the browser engine.
// It implements the typed page capabilities the workflow sequences, and it
// is the only package that knows the panel's DOM.
package panel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/renewal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// clickTimeout bounds each optional control probe. The panel renders
	// these controls immediately or not at all.
	clickTimeout = 3 * time.Second

	// settleShort and settleLong pace the panel's server-rendered page
	// transitions. The pages carry no reliable load-complete signal past
	// the navigation itself.
	settleShort = 2 * time.Second
	settleLong  = 5 * time.Second
)

// Surface drives the panel inside one browser tab.
type Surface struct {
	tab   context.Context
	panel config.PanelConfig
	bcfg  config.BrowserConfig
	vpsID string
	log   *zap.Logger

	shotMu  sync.Mutex
	shotSeq int
}

// NewSurface binds a Surface to an open tab context.
func NewSurface(tab context.Context, panelCfg config.PanelConfig, browserCfg config.BrowserConfig, vpsID string, logger *zap.Logger) *Surface {
	return &Surface{
		tab:   tab,
		panel: panelCfg,
		bcfg:  browserCfg,
		vpsID: vpsID,
		log:   logger.Named("panel"),
	}
}

// op derives a bounded context for one page operation. The caller's context
// contributes cancellation; the tab context carries the browser session.
func (s *Surface) op(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tab, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() { stop(); cancel() }
}

func (s *Surface) waitTimeout() time.Duration {
	if s.bcfg.WaitTimeout > 0 {
		return s.bcfg.WaitTimeout
	}
	return 30 * time.Second
}

// evalString runs a page script expected to produce a string.
func (s *Surface) evalString(ctx context.Context, script string) (string, error) {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var out string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &out)); err != nil {
		return "", err
	}
	return out, nil
}

// Login authenticates with the panel and verifies the post-login URL.
func (s *Surface) Login(ctx context.Context, email, password string) error {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	err := chromedp.Run(opCtx,
		chromedp.Navigate(s.panel.LoginURL()),
		chromedp.Sleep(settleShort),
		chromedp.WaitVisible(`input[name="memberid"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="memberid"]`, email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="user_password"]`, password, chromedp.ByQuery),
		chromedp.Click(`input[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(settleLong),
	)
	if err != nil {
		return fmt.Errorf("driving the login form: %w", err)
	}
	s.Screenshot(ctx, "after_login")

	loc, err := s.PageURL(ctx)
	if err != nil {
		return fmt.Errorf("reading post-login location: %w", err)
	}
	// A successful login lands on the service index; a rejected one bounces
	// back to a login URL.
	if strings.Contains(loc, "xvps/index") || !strings.Contains(strings.ToLower(loc), "login") {
		s.log.Info("Logged in", zap.String("url", loc))
		return nil
	}
	return fmt.Errorf("panel did not accept the credentials (still at %s)", loc)
}

// FindExpiryText loads the detail page and returns the usage-deadline row.
func (s *Surface) FindExpiryText(ctx context.Context) (string, error) {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var row string
	err := chromedp.Run(opCtx,
		chromedp.Navigate(s.panel.DetailURL(s.vpsID)),
		chromedp.Sleep(settleShort),
		chromedp.Evaluate(expiryRowScript, &row),
	)
	if err != nil {
		return "", fmt.Errorf("loading the detail page: %w", err)
	}
	s.Screenshot(ctx, "detail")

	if row == "" {
		return "", fmt.Errorf("no usage-deadline row on the detail page")
	}
	return row, nil
}

// clickLabeled clicks the first element of the given tag whose text contains
// the label, bounded by the probe timeout.
func (s *Surface) clickLabeled(ctx context.Context, tag, label string, settle time.Duration) error {
	opCtx, cancel := s.op(ctx, clickTimeout+settle)
	defer cancel()

	xpath := fmt.Sprintf(`//%s[contains(., %q)]`, tag, label)
	return chromedp.Run(opCtx,
		chromedp.Click(xpath, chromedp.BySearch),
		chromedp.Sleep(settle),
	)
}

// ClickUpdateControl activates the detail page's update control when it is
// rendered as a link or a button. Absence is reported but carries no weight.
func (s *Surface) ClickUpdateControl(ctx context.Context) error {
	if err := s.clickLabeled(ctx, "a", updateControlLabel, settleShort); err == nil {
		return nil
	}
	if err := s.clickLabeled(ctx, "button", updateControlLabel, settleShort); err == nil {
		return nil
	}
	return fmt.Errorf("no update control on the page")
}

// OpenRenewalByControl clicks the renewal button.
func (s *Surface) OpenRenewalByControl(ctx context.Context) error {
	if err := s.clickLabeled(ctx, "button", renewalControlLabel, settleLong); err != nil {
		return fmt.Errorf("renewal button: %w", err)
	}
	s.Screenshot(ctx, "renewal_form")
	return nil
}

// OpenRenewalByLink clicks the link-styled variant of the renewal control.
func (s *Surface) OpenRenewalByLink(ctx context.Context) error {
	if err := s.clickLabeled(ctx, "a", renewalControlLabel, settleLong); err != nil {
		return fmt.Errorf("renewal link: %w", err)
	}
	s.Screenshot(ctx, "renewal_form")
	return nil
}

// NavigateRenewalDirect loads the renewal form by URL. When the resulting
// page carries the renewal control it is clicked through; when it instead
// states the window has not opened, that domain signal is surfaced.
func (s *Surface) NavigateRenewalDirect(ctx context.Context) (renewal.OpenResult, error) {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var content string
	err := chromedp.Run(opCtx,
		chromedp.Navigate(s.panel.ExtendURL(s.vpsID)),
		chromedp.Sleep(settleShort),
		chromedp.Evaluate(pageTextScript, &content),
	)
	if err != nil {
		return renewal.OpenUnavailable, fmt.Errorf("loading the renewal URL: %w", err)
	}
	s.Screenshot(ctx, "renewal_direct")

	if strings.Contains(content, renewalControlLabel) {
		if err := s.clickLabeled(ctx, "button", renewalControlLabel, settleLong); err == nil {
			s.Screenshot(ctx, "renewal_form")
			return renewal.Opened, nil
		}
		if err := s.clickLabeled(ctx, "a", renewalControlLabel, settleLong); err == nil {
			s.Screenshot(ctx, "renewal_form")
			return renewal.Opened, nil
		}
		return renewal.OpenUnavailable, fmt.Errorf("renewal control present but not clickable")
	}

	if IsWindowClosed(content) {
		return renewal.WindowClosed, nil
	}
	return renewal.OpenUnavailable, fmt.Errorf("renewal URL rendered neither the control nor a window signal")
}

// InteractiveSiteKey reads the interactive challenge's site key if present.
func (s *Surface) InteractiveSiteKey(ctx context.Context) (string, bool, error) {
	key, err := s.evalString(ctx, siteKeyScript)
	if err != nil {
		return "", false, fmt.Errorf("probing for the interactive challenge: %w", err)
	}
	return key, key != "", nil
}

// ChallengeImage returns the inline challenge image as a data URL.
func (s *Surface) ChallengeImage(ctx context.Context) (string, bool, error) {
	data, err := s.evalString(ctx, challengeImageScript)
	if err != nil {
		return "", false, fmt.Errorf("probing for the challenge image: %w", err)
	}
	return data, data != "", nil
}

// PageURL returns the tab's current location.
func (s *Surface) PageURL(ctx context.Context) (string, error) {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var loc string
	if err := chromedp.Run(opCtx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// SubmitCode fills the solved digits into the code field and submits the
// form.
func (s *Surface) SubmitCode(ctx context.Context, code string) error {
	arg, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encoding the code: %w", err)
	}

	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var filled bool
	err = chromedp.Run(opCtx,
		chromedp.Evaluate(fmt.Sprintf(submitCodeScript, arg), &filled),
		chromedp.Sleep(settleLong),
	)
	if err != nil {
		return fmt.Errorf("submitting the code: %w", err)
	}
	if !filled {
		return fmt.Errorf("no code field on the renewal form")
	}
	s.Screenshot(ctx, "after_submit")
	return nil
}

// ClassifyOutcome scans the post-submission page for phrase markers.
func (s *Surface) ClassifyOutcome(ctx context.Context) (renewal.Verdict, error) {
	content, err := s.evalString(ctx, pageTextScript)
	if err != nil {
		return renewal.VerdictAmbiguous, fmt.Errorf("reading the result page: %w", err)
	}
	return ClassifyContent(content), nil
}

// Refresh reloads the page, yielding a fresh image and interactive
// challenge pairing.
func (s *Surface) Refresh(ctx context.Context) error {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	return chromedp.Run(opCtx,
		chromedp.Reload(),
		chromedp.Sleep(settleShort),
	)
}

// InjectToken writes a solved bypass token into the hidden response field.
func (s *Surface) InjectToken(ctx context.Context, token string) error {
	arg, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding the token: %w", err)
	}

	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var injected bool
	err = chromedp.Run(opCtx,
		chromedp.Evaluate(fmt.Sprintf(injectTokenScript, arg), &injected),
		chromedp.Sleep(settleShort),
	)
	if err != nil {
		return fmt.Errorf("injecting the token: %w", err)
	}
	if !injected {
		return fmt.Errorf("no challenge response field on the page")
	}
	return nil
}

// widgetPoint is the viewport coordinate the mouse sequence targets.
type widgetPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ActivateWidget walks the mouse onto the interactive widget's checkbox and
// clicks it. The widget's visual state lags a directly injected token; a
// real input sequence brings it along. Pacing between the events mirrors a
// hesitant human click.
func (s *Surface) ActivateWidget(ctx context.Context) error {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var pt *widgetPoint
	if err := chromedp.Run(opCtx, chromedp.Evaluate(widgetPointScript, &pt)); err != nil {
		return fmt.Errorf("locating the widget: %w", err)
	}
	if pt == nil {
		return fmt.Errorf("no interactive widget on the page")
	}

	err := chromedp.Run(opCtx,
		chromedp.MouseEvent(input.MouseMoved, pt.X, pt.Y),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.MouseEvent(input.MousePressed, pt.X, pt.Y, chromedp.Button("left"), chromedp.ClickCount(1)),
		chromedp.Sleep(150*time.Millisecond),
		chromedp.MouseEvent(input.MouseReleased, pt.X, pt.Y, chromedp.Button("left"), chromedp.ClickCount(1)),
		chromedp.Sleep(settleShort),
	)
	if err != nil {
		return fmt.Errorf("clicking the widget: %w", err)
	}
	return nil
}

// TokenFieldLength reads back the hidden response field's value length.
func (s *Surface) TokenFieldLength(ctx context.Context) (int, error) {
	opCtx, cancel := s.op(ctx, s.waitTimeout())
	defer cancel()

	var length int
	if err := chromedp.Run(opCtx, chromedp.Evaluate(tokenFieldLengthScript, &length)); err != nil {
		return 0, fmt.Errorf("reading the token field back: %w", err)
	}
	return length, nil
}

// Screenshot captures a sequenced checkpoint image when screenshots are
// enabled. Failures are logged and otherwise ignored.
func (s *Surface) Screenshot(ctx context.Context, name string) {
	if !s.bcfg.Screenshots {
		return
	}

	s.shotMu.Lock()
	s.shotSeq++
	seq := s.shotSeq
	s.shotMu.Unlock()

	opCtx, cancel := s.op(ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		s.log.Debug("Screenshot failed", zap.String("name", name), zap.Error(err))
		return
	}

	dir := s.bcfg.ScreenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Debug("Screenshot directory unavailable", zap.Error(err))
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d_%s.png", seq, name))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.log.Debug("Screenshot write failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.log.Debug("Screenshot saved", zap.String("path", path))
}
