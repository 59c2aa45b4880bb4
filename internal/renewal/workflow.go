// File: internal/renewal/workflow.go
// The renewal workflow: a sequential state machine driving the panel surface
// through login, expiry capture, eligibility, surface opening and the
// challenge-solve-submit loop. Collaborators are injected as interfaces,
// keeping the sequencing logic decoupled and testable.
package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
)

// State identifies the workflow's position in the run.
type State string

const (
	StateInit               State = "Init"
	StateLoggedIn           State = "LoggedIn"
	StateExpiryKnown        State = "ExpiryKnown"
	StateEligibilityChecked State = "EligibilityChecked"
	StateRenewalSurfaceOpen State = "RenewalSurfaceOpen"
	StateChallengesResolved State = "ChallengesResolved"
	StateSubmitted          State = "Submitted"
	StateDone               State = "Done"
)

// maxSubmitAttempts bounds the whole challenge-solve-submit cycle. Each
// retry refreshes the page so the image and the interactive token are always
// solved together against the same page state.
const maxSubmitAttempts = 3

// Outcome is the terminal result of one run, consumed by the reporter and
// the notifier.
type Outcome struct {
	RunID        string
	Status       Status
	ExpiryBefore ExpiryRecord
	ExpiryAfter  ExpiryRecord
	ErrorDetail  string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Workflow sequences a single renewal run. One Workflow drives one browser
// session; runs are never concurrent.
type Workflow struct {
	surface  Surface
	resolver Resolver
	account  config.AccountConfig
	log      *zap.Logger

	// now is injectable for eligibility tests with fixed dates.
	now func() time.Time

	runID string
	state State
}

// NewWorkflow creates a workflow for one run.
func NewWorkflow(surface Surface, resolver Resolver, account config.AccountConfig, logger *zap.Logger) *Workflow {
	runID := uuid.New().String()
	return &Workflow{
		surface:  surface,
		resolver: resolver,
		account:  account,
		log:      logger.Named("workflow").With(zap.String("run_id", runID[:8])),
		now:      time.Now,
		runID:    runID,
		state:    StateInit,
	}
}

// WithClock overrides the workflow's clock. For tests.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now
	return w
}

// State returns the workflow's current state.
func (w *Workflow) State() State {
	return w.state
}

func (w *Workflow) transition(to State) {
	w.log.Debug("State transition", zap.String("from", string(w.state)), zap.String("to", string(to)))
	w.state = to
}

// Run executes the state machine through to a terminal status. Errors are
// captured at each step boundary and converted into the outcome; Run itself
// never fails.
func (w *Workflow) Run(ctx context.Context) Outcome {
	out := Outcome{
		RunID:     w.runID,
		Status:    StatusUnknown,
		StartedAt: w.now(),
	}
	defer func() {
		out.FinishedAt = w.now()
		w.transition(StateDone)
		w.log.Info("Run finished",
			zap.String("status", string(out.Status)),
			zap.String("error_detail", out.ErrorDetail),
		)
	}()

	// Init -> LoggedIn. Credential problems do not self-correct, so a login
	// failure is terminal with no retry.
	if err := w.surface.Login(ctx, w.account.Email, w.account.Password); err != nil {
		w.log.Error("Login failed", zap.Error(err))
		out.Status = StatusFailed
		out.ErrorDetail = fmt.Sprintf("login failed: %v", err)
		return out
	}
	w.transition(StateLoggedIn)
	w.surface.Screenshot(ctx, "logged_in")

	// LoggedIn -> ExpiryKnown. A parse failure is non-fatal here: the
	// renewal surface itself is the authoritative fallback signal.
	out.ExpiryBefore = w.fetchExpiry(ctx)
	if out.ExpiryBefore.Known() {
		w.transition(StateExpiryKnown)
	} else {
		w.log.Warn("Expiry date unknown, continuing; the renewal surface will decide")
	}
	w.surface.Screenshot(ctx, "detail_page")

	// ExpiryKnown -> EligibilityChecked. The single most important guard:
	// never spend solver budget outside the renewal window.
	if out.ExpiryBefore.Known() {
		today := TodayJST(w.now())
		if !Eligible(out.ExpiryBefore.Date, today) {
			w.log.Info("Not yet eligible for renewal",
				zap.Time("expiry", out.ExpiryBefore.Date),
				zap.Time("today_jst", today),
			)
			out.Status = StatusUnexpired
			return out
		}
	}
	w.transition(StateEligibilityChecked)

	// EligibilityChecked -> RenewalSurfaceOpen.
	result := w.openRenewalSurface(ctx)
	switch result {
	case WindowClosed:
		out.Status = StatusUnexpired
		return out
	case OpenUnavailable:
		out.Status = StatusFailed
		out.ErrorDetail = "could not reach renewal surface"
		return out
	}
	w.transition(StateRenewalSurfaceOpen)
	w.surface.Screenshot(ctx, "renewal_form")

	// RenewalSurfaceOpen -> ChallengesResolved -> Submitted.
	w.runSubmissionLoop(ctx, &out)
	return out
}

// fetchExpiry reads and parses the detail page's expiry row.
func (w *Workflow) fetchExpiry(ctx context.Context) ExpiryRecord {
	text, err := w.surface.FindExpiryText(ctx)
	if err != nil {
		w.log.Warn("Could not read expiry row", zap.Error(err))
		return ExpiryRecord{}
	}
	date, err := ParseExpiry(text)
	if err != nil {
		w.log.Warn("Could not parse expiry date", zap.Error(err))
		return ExpiryRecord{}
	}
	w.log.Info("Expiry date captured", zap.Time("expiry", date))
	return ExpiryRecord{Date: date, Source: "detail-page"}
}

// openStrategy is one named route to the renewal form.
type openStrategy struct {
	name string
	run  func(ctx context.Context) (OpenResult, error)
}

// openRenewalSurface tries the ordered surface-opening strategies; the first
// success wins. A strategy error means "try the next one", never a terminal
// failure on its own.
func (w *Workflow) openRenewalSurface(ctx context.Context) OpenResult {
	// The detail page sometimes hides the renewal route behind an update
	// control; click it if present before trying the strategies.
	if err := w.surface.ClickUpdateControl(ctx); err != nil {
		w.log.Debug("Update control not clicked", zap.Error(err))
	}

	strategies := []openStrategy{
		{"primary control", func(ctx context.Context) (OpenResult, error) {
			if err := w.surface.OpenRenewalByControl(ctx); err != nil {
				return OpenUnavailable, err
			}
			return Opened, nil
		}},
		{"link control", func(ctx context.Context) (OpenResult, error) {
			if err := w.surface.OpenRenewalByLink(ctx); err != nil {
				return OpenUnavailable, err
			}
			return Opened, nil
		}},
		{"direct navigation", w.surface.NavigateRenewalDirect},
	}

	for _, s := range strategies {
		result, err := s.run(ctx)
		switch result {
		case Opened:
			w.log.Info("Renewal surface open", zap.String("strategy", s.name))
			return Opened
		case WindowClosed:
			w.log.Info("Renewal window not open yet", zap.String("strategy", s.name))
			return WindowClosed
		default:
			w.log.Debug("Strategy did not reach the renewal form",
				zap.String("strategy", s.name), zap.Error(err))
		}
	}

	w.log.Warn("All surface-opening strategies failed")
	return OpenUnavailable
}

// runSubmissionLoop executes the bounded challenge-solve-submit cycle. A
// failed cycle refreshes the page and re-solves both challenges together: a
// stale image/token pairing is unsafe to reuse after any submission.
func (w *Workflow) runSubmissionLoop(ctx context.Context, out *Outcome) {
	lastDetail := ""

	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		log := w.log.With(zap.Int("attempt", attempt))

		if attempt > 1 {
			if err := w.surface.Refresh(ctx); err != nil {
				log.Warn("Page refresh failed", zap.Error(err))
			}
		}

		// Interactive challenge: best-effort. The form may accept the
		// submission even without a verified token.
		if key, present, err := w.surface.InteractiveSiteKey(ctx); err != nil {
			log.Warn("Could not probe for interactive challenge", zap.Error(err))
		} else if present {
			pageURL, _ := w.surface.PageURL(ctx)
			solved, serr := w.resolver.SolveInteractive(ctx, key, pageURL)
			if serr != nil || !solved {
				log.Warn("Proceeding without a verified interactive token", zap.Error(serr))
			}
		}

		// Image challenge. Its absence on an open renewal form means the
		// window closed concurrently, not a failure.
		img, present, err := w.surface.ChallengeImage(ctx)
		if err != nil {
			lastDetail = fmt.Sprintf("could not read challenge image: %v", err)
			log.Warn("Challenge image read failed", zap.Error(err))
			continue
		}
		if !present {
			log.Info("No image challenge on the form; window closed concurrently")
			out.Status = StatusUnexpired
			return
		}

		code, err := w.resolver.SolveImage(ctx, img)
		if err != nil || code == "" {
			lastDetail = "captcha recognition failed"
			log.Warn("Image challenge unresolved", zap.Error(err))
			continue
		}
		w.transition(StateChallengesResolved)

		if err := w.surface.SubmitCode(ctx, code); err != nil {
			lastDetail = fmt.Sprintf("submission failed: %v", err)
			log.Warn("Form submission failed", zap.Error(err))
			continue
		}
		w.transition(StateSubmitted)
		w.surface.Screenshot(ctx, fmt.Sprintf("submitted_%d", attempt))

		verdict, err := w.surface.ClassifyOutcome(ctx)
		if err != nil {
			log.Warn("Could not classify submission outcome", zap.Error(err))
			verdict = VerdictAmbiguous
		}

		switch verdict {
		case VerdictSuccess:
			log.Info("Renewal confirmed")
			out.Status = StatusSuccess
			out.ExpiryAfter = w.fetchExpiry(ctx)
			return
		case VerdictCodeRejected:
			lastDetail = "panel rejected the challenge code"
			log.Warn("Challenge code rejected")
		default:
			lastDetail = "no success or error marker on the result page"
			log.Warn("Ambiguous submission result")
			if attempt == maxSubmitAttempts {
				// The action may have silently succeeded; surface that
				// distinctly so a human can investigate.
				out.Status = StatusUnknown
				out.ErrorDetail = lastDetail
				return
			}
		}
	}

	out.Status = StatusFailed
	out.ErrorDetail = lastDetail
}
