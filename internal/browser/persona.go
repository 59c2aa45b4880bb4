// File: internal/browser/persona.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Persona is the consistent browser profile applied to every tab. The panel
// serves Japanese accounts, so the default persona reads as a Japanese
// desktop user end to end: language headers, locale, and timezone all agree.
type Persona struct {
	UserAgent  string
	Platform   string
	Languages  []string
	TimezoneID string
	Locale     string
	Width      int64
	Height     int64
}

// DefaultPersona returns the profile used when nothing overrides it.
func DefaultPersona() Persona {
	return Persona{
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:   "Win32",
		Languages:  []string{"ja-JP", "ja", "en-US", "en"},
		TimezoneID: "Asia/Tokyo",
		Locale:     "ja-JP",
		Width:      1920,
		Height:     1080,
	}
}

// evasionScript neutralizes the most common automation tells before any
// page script runs.
const evasionScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
`

// AcceptLanguageValue renders the persona's language list as an
// Accept-Language header value with descending quality factors.
func (p Persona) AcceptLanguageValue() string {
	if len(p.Languages) == 0 {
		return ""
	}
	value := p.Languages[0]
	for i := 1; i < len(p.Languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		value += fmt.Sprintf(",%s;q=%.1f", p.Languages[i], q)
	}
	return value
}

// Apply configures the tab to present the persona consistently across
// headers, emulation overrides, and the JS environment.
func (p Persona) Apply(logger *zap.Logger) chromedp.Action {
	l := logger.Named("persona")
	return chromedp.Tasks{
		network.Enable(),

		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(p.Languages) == 0 {
				return nil
			}
			headers := map[string]interface{}{"Accept-Language": p.AcceptLanguageValue()}
			if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
				return fmt.Errorf("persona: setting headers: %w", err)
			}
			return nil
		}),

		chromedp.ActionFunc(func(ctx context.Context) error {
			err := emulation.SetUserAgentOverride(p.UserAgent).
				WithPlatform(p.Platform).
				WithAcceptLanguage(strings.Join(p.Languages, ",")).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("persona: setting user agent: %w", err)
			}
			return nil
		}),

		chromedp.ActionFunc(func(ctx context.Context) error {
			if p.Width <= 0 || p.Height <= 0 {
				return nil
			}
			err := emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1.0, false).
				WithScreenOrientation(&emulation.ScreenOrientation{
					Type:  emulation.OrientationTypeLandscapePrimary,
					Angle: 0,
				}).Do(ctx)
			if err != nil {
				return fmt.Errorf("persona: setting device metrics: %w", err)
			}
			return nil
		}),

		chromedp.ActionFunc(func(ctx context.Context) error {
			if p.TimezoneID != "" {
				if err := emulation.SetTimezoneOverride(p.TimezoneID).Do(ctx); err != nil {
					return fmt.Errorf("persona: setting timezone: %w", err)
				}
			}
			if p.Locale != "" {
				if err := emulation.SetLocaleOverride().WithLocale(p.Locale).Do(ctx); err != nil {
					return fmt.Errorf("persona: setting locale: %w", err)
				}
			}
			return nil
		}),

		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionScript).Do(ctx); err != nil {
				return fmt.Errorf("persona: registering evasion script: %w", err)
			}
			return nil
		}),

		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),

		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Persona applied", zap.String("locale", p.Locale), zap.String("timezone", p.TimezoneID))
			return nil
		}),
	}
}
