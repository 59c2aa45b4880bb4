// File: internal/renewal/workflow_test.go
package renewal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/renewal"
)

// -- Scripted fakes --

// fakeSurface scripts the panel surface one run at a time. Slice fields are
// consumed per call; when exhausted the last element sticks.
type fakeSurface struct {
	loginErr error

	expiryTexts []string // consumed by FindExpiryText
	expiryErr   error

	openControlErr error
	openLinkErr    error
	directResult   renewal.OpenResult
	directErr      error

	siteKey      string // "" means no interactive challenge
	imagePresent bool
	imageData    string
	imageErr     error

	verdicts []renewal.Verdict // consumed per ClassifyOutcome

	// counters
	loginCalls   int
	expiryCalls  int
	openCalls    int
	refreshCalls int
	submits      []string
	shots        []string
}

func (f *fakeSurface) Login(_ context.Context, _, _ string) error {
	f.loginCalls++
	return f.loginErr
}

func (f *fakeSurface) FindExpiryText(context.Context) (string, error) {
	f.expiryCalls++
	if f.expiryErr != nil {
		return "", f.expiryErr
	}
	return takeSticky(&f.expiryTexts), nil
}

func (f *fakeSurface) ClickUpdateControl(context.Context) error { return nil }

func (f *fakeSurface) OpenRenewalByControl(context.Context) error {
	f.openCalls++
	return f.openControlErr
}

func (f *fakeSurface) OpenRenewalByLink(context.Context) error {
	f.openCalls++
	return f.openLinkErr
}

func (f *fakeSurface) NavigateRenewalDirect(context.Context) (renewal.OpenResult, error) {
	f.openCalls++
	return f.directResult, f.directErr
}

func (f *fakeSurface) InteractiveSiteKey(context.Context) (string, bool, error) {
	return f.siteKey, f.siteKey != "", nil
}

func (f *fakeSurface) ChallengeImage(context.Context) (string, bool, error) {
	if f.imageErr != nil {
		return "", false, f.imageErr
	}
	return f.imageData, f.imagePresent, nil
}

func (f *fakeSurface) PageURL(context.Context) (string, error) {
	return "https://panel.example/extend", nil
}

func (f *fakeSurface) SubmitCode(_ context.Context, code string) error {
	f.submits = append(f.submits, code)
	return nil
}

func (f *fakeSurface) ClassifyOutcome(context.Context) (renewal.Verdict, error) {
	if len(f.verdicts) == 0 {
		return renewal.VerdictAmbiguous, nil
	}
	v := f.verdicts[0]
	if len(f.verdicts) > 1 {
		f.verdicts = f.verdicts[1:]
	}
	return v, nil
}

func (f *fakeSurface) Refresh(context.Context) error {
	f.refreshCalls++
	return nil
}

func (f *fakeSurface) Screenshot(_ context.Context, name string) {
	f.shots = append(f.shots, name)
}

func takeSticky(s *[]string) string {
	if len(*s) == 0 {
		return ""
	}
	v := (*s)[0]
	if len(*s) > 1 {
		*s = (*s)[1:]
	}
	return v
}

// fakeResolver scripts the challenge resolver.
type fakeResolver struct {
	codes    []string // consumed per SolveImage; "" = unresolved
	solveErr error

	interactiveSolved bool
	interactiveErr    error

	imageCalls       int
	interactiveCalls int
	lastSiteKey      string
}

func (f *fakeResolver) SolveImage(context.Context, string) (string, error) {
	f.imageCalls++
	if f.solveErr != nil {
		return "", f.solveErr
	}
	return takeSticky(&f.codes), nil
}

func (f *fakeResolver) SolveInteractive(_ context.Context, siteKey, _ string) (bool, error) {
	f.interactiveCalls++
	f.lastSiteKey = siteKey
	return f.interactiveSolved, f.interactiveErr
}

// -- Helpers --

func fixedClock(y int, m time.Month, d int) func() time.Time {
	// Noon JST keeps the calendar date unambiguous.
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, renewal.JST) }
}

func newWorkflow(s *fakeSurface, r *fakeResolver) *renewal.Workflow {
	account := config.AccountConfig{Email: "user@example.com", Password: "pw", VPSID: "42"}
	return renewal.NewWorkflow(s, r, account, zap.NewNop())
}

// eligibleSurface returns a surface scripted for an in-window run with an
// image challenge present.
func eligibleSurface() *fakeSurface {
	return &fakeSurface{
		expiryTexts:  []string{"利用期限 2024年6月10日"},
		imagePresent: true,
		imageData:    "data:image/png;base64,AAAA",
	}
}

// -- Terminal-state scenarios --

func TestRun_ShortCircuitsWhenUnexpired(t *testing.T) {
	// Scenario A: expiry 2024-06-10, today(JST) 2024-06-08. The run must end
	// Unexpired before any challenge-solving call or surface-opening attempt.
	surface := eligibleSurface()
	resolver := &fakeResolver{}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 8)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusUnexpired, out.Status)
	assert.False(t, out.Status.IsError(), "Unexpired must never be an error path")
	assert.Zero(t, resolver.imageCalls, "no OCR spend outside the window")
	assert.Zero(t, resolver.interactiveCalls, "no solver spend outside the window")
	assert.Zero(t, surface.openCalls, "no surface-opening attempts outside the window")
}

func TestRun_SuccessOnFirstAttempt(t *testing.T) {
	// Scenario B: eligible, OCR resolves first try, no interactive
	// challenge, success marker on the result page.
	surface := eligibleSurface()
	surface.expiryTexts = []string{"利用期限 2024年6月10日", "利用期限 2024年6月11日"}
	surface.verdicts = []renewal.Verdict{renewal.VerdictSuccess}
	resolver := &fakeResolver{codes: []string{"1234"}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusSuccess, out.Status)
	assert.Equal(t, []string{"1234"}, surface.submits)
	assert.Equal(t, 1, resolver.imageCalls)
	assert.Zero(t, resolver.interactiveCalls)

	require.True(t, out.ExpiryAfter.Known(), "new expiry must be re-fetched after success")
	assert.Equal(t, 11, out.ExpiryAfter.Date.Day())
}

func TestRun_SubmissionLoopUsesAllAttempts(t *testing.T) {
	// Error marker on the first two submissions, success on the third: the
	// run must end Success after exactly 3 attempts, refreshing in between.
	surface := eligibleSurface()
	surface.verdicts = []renewal.Verdict{
		renewal.VerdictCodeRejected,
		renewal.VerdictCodeRejected,
		renewal.VerdictSuccess,
	}
	resolver := &fakeResolver{codes: []string{"1234", "5678", "2468"}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusSuccess, out.Status)
	assert.Equal(t, []string{"1234", "5678", "2468"}, surface.submits)
	assert.Equal(t, 3, resolver.imageCalls)
	assert.Equal(t, 2, surface.refreshCalls, "each retry refreshes for a fresh challenge pair")
}

func TestRun_FailsWhenOCRExhausted(t *testing.T) {
	// Scenario C: the resolver never produces a code. The run must end
	// Failed with a detail reflecting the recognition failure, and nothing
	// must ever be submitted.
	surface := eligibleSurface()
	resolver := &fakeResolver{codes: []string{""}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusFailed, out.Status)
	assert.Equal(t, "captcha recognition failed", out.ErrorDetail)
	assert.Empty(t, surface.submits)
	assert.Equal(t, 3, resolver.imageCalls, "one resolution per submission attempt")
}

func TestRun_MissingImageMeansWindowClosed(t *testing.T) {
	surface := eligibleSurface()
	surface.imagePresent = false
	resolver := &fakeResolver{codes: []string{"1234"}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusUnexpired, out.Status,
		"a vanished image challenge means the window closed, not a failure")
	assert.Zero(t, resolver.imageCalls)
}

func TestRun_AmbiguousOutcomeEndsUnknown(t *testing.T) {
	surface := eligibleSurface()
	surface.verdicts = []renewal.Verdict{renewal.VerdictAmbiguous}
	resolver := &fakeResolver{codes: []string{"1234"}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusUnknown, out.Status,
		"ambiguous exhaustion must stay Unknown, never coerced to Failed")
	assert.Len(t, surface.submits, 3)
}

func TestRun_LoginFailureIsTerminal(t *testing.T) {
	surface := eligibleSurface()
	surface.loginErr = errors.New("bad credentials")
	resolver := &fakeResolver{}

	out := newWorkflow(surface, resolver).Run(context.Background())

	assert.Equal(t, renewal.StatusFailed, out.Status)
	assert.Contains(t, out.ErrorDetail, "login failed")
	assert.Equal(t, 1, surface.loginCalls, "credential problems are not retried")
	assert.Zero(t, surface.expiryCalls)
}

// -- Surface-opening strategies --

func TestRun_SurfaceOpensViaFallbackStrategy(t *testing.T) {
	surface := eligibleSurface()
	surface.openControlErr = errors.New("control not found")
	surface.openLinkErr = errors.New("link not found")
	surface.directResult = renewal.Opened
	surface.verdicts = []renewal.Verdict{renewal.VerdictSuccess}
	resolver := &fakeResolver{codes: []string{"1234"}}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusSuccess, out.Status)
	assert.Equal(t, 3, surface.openCalls, "all three strategies tried in order")
}

func TestRun_DirectNavigationDetectsClosedWindow(t *testing.T) {
	surface := eligibleSurface()
	surface.openControlErr = errors.New("control not found")
	surface.openLinkErr = errors.New("link not found")
	surface.directResult = renewal.WindowClosed
	resolver := &fakeResolver{}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusUnexpired, out.Status)
	assert.Zero(t, resolver.imageCalls)
}

func TestRun_AllStrategiesFail(t *testing.T) {
	surface := eligibleSurface()
	surface.openControlErr = errors.New("control not found")
	surface.openLinkErr = errors.New("link not found")
	surface.directResult = renewal.OpenUnavailable
	surface.directErr = errors.New("navigation timeout")
	resolver := &fakeResolver{}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusFailed, out.Status)
	assert.Equal(t, "could not reach renewal surface", out.ErrorDetail)
}

// -- Expiry edge cases --

func TestRun_UnknownExpiryProceedsToSurface(t *testing.T) {
	// A parse failure must not stop the run: the renewal surface itself is
	// the authoritative fallback for the window state.
	surface := eligibleSurface()
	surface.expiryTexts = []string{"利用期限 unreadable"}
	surface.directResult = renewal.WindowClosed
	surface.openControlErr = errors.New("control not found")
	surface.openLinkErr = errors.New("link not found")
	resolver := &fakeResolver{}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 8)).
		Run(context.Background())

	assert.False(t, out.ExpiryBefore.Known())
	assert.Equal(t, renewal.StatusUnexpired, out.Status,
		"the page's own closed-window signal decides when expiry is unknown")
	assert.NotZero(t, surface.openCalls, "eligibility must not short-circuit on unknown expiry")
}

// -- Interactive challenge --

func TestRun_InteractiveChallengeBestEffort(t *testing.T) {
	surface := eligibleSurface()
	surface.siteKey = "0x4AAA-site-key"
	surface.verdicts = []renewal.Verdict{renewal.VerdictSuccess}
	resolver := &fakeResolver{codes: []string{"1234"}, interactiveSolved: false}

	out := newWorkflow(surface, resolver).
		WithClock(fixedClock(2024, time.June, 9)).
		Run(context.Background())

	assert.Equal(t, renewal.StatusSuccess, out.Status,
		"an unsolved interactive challenge must not block submission")
	assert.Equal(t, 1, resolver.interactiveCalls)
	assert.Equal(t, "0x4AAA-site-key", resolver.lastSiteKey)
}

func TestWorkflow_StateProgression(t *testing.T) {
	surface := eligibleSurface()
	surface.verdicts = []renewal.Verdict{renewal.VerdictSuccess}
	resolver := &fakeResolver{codes: []string{"1234"}}

	w := newWorkflow(surface, resolver).WithClock(fixedClock(2024, time.June, 9))
	assert.Equal(t, renewal.StateInit, w.State())

	out := w.Run(context.Background())
	assert.Equal(t, renewal.StatusSuccess, out.Status)
	assert.Equal(t, renewal.StateDone, w.State())
	assert.False(t, out.FinishedAt.Before(out.StartedAt))
	assert.NotEmpty(t, out.RunID)
}
