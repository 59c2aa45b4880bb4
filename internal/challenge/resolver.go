// File: internal/challenge/resolver.go

// Package challenge coordinates the two external challenge-solving services
// and validates their results before the workflow acts on them.
package challenge

import (
	"context"

	"go.uber.org/zap"
)

// TaskKind distinguishes the two challenge kinds.
type TaskKind string

const (
	TaskOCR         TaskKind = "ocr"
	TaskInteractive TaskKind = "interactive"
)

// Task tracks one challenge encounter. Tasks are created per encounter and
// never outlive a single resolver call.
type Task struct {
	Kind     TaskKind
	Attempts int
	Result   string
}

// minInjectedTokenLength is the shortest read-back that counts as a real
// bypass token. The widget's tokens run to hundreds of characters; anything
// this short means the injection landed in the wrong field or was clobbered.
const minInjectedTokenLength = 20

// TokenInjector writes a solved token into the page's hidden challenge
// response field, nudges the widget itself, and reads the field back for
// verification.
type TokenInjector interface {
	InjectToken(ctx context.Context, token string) error
	ActivateWidget(ctx context.Context) error
	TokenFieldLength(ctx context.Context) (int, error)
}

// Resolver implements the workflow's challenge-resolving collaborator.
type Resolver struct {
	ocr         *OCRClient
	interactive *InteractiveClient
	injector    TokenInjector
	log         *zap.Logger
}

// NewResolver wires the two solving clients and the page-side injector.
func NewResolver(ocr *OCRClient, interactive *InteractiveClient, injector TokenInjector, logger *zap.Logger) *Resolver {
	return &Resolver{
		ocr:         ocr,
		interactive: interactive,
		injector:    injector,
		log:         logger.Named("resolver"),
	}
}

// SolveImage resolves the image challenge to validated digits. Exhausted or
// unavailable solving yields "" without an error: unresolved is recoverable
// at the workflow level (refresh and re-challenge), not fatal here.
func (r *Resolver) SolveImage(ctx context.Context, imageData string) (string, error) {
	task := Task{Kind: TaskOCR}

	code, attempts, err := r.ocr.Solve(ctx, imageData)
	task.Attempts = attempts
	task.Result = code
	defer r.logTask(task)

	if err != nil {
		r.log.Warn("Image challenge unresolved", zap.Error(err))
		return "", nil
	}
	return code, nil
}

func (r *Resolver) logTask(task Task) {
	r.log.Debug("Challenge task finished",
		zap.String("kind", string(task.Kind)),
		zap.Int("attempts", task.Attempts),
		zap.Bool("solved", task.Result != ""),
	)
}

// SolveInteractive obtains a bypass token, injects it into the page, and
// verifies the injection by reading the field length back. It reports true
// only when a plausible token is verified in place.
func (r *Resolver) SolveInteractive(ctx context.Context, siteKey, pageURL string) (bool, error) {
	task := Task{Kind: TaskInteractive, Attempts: 1}
	defer func() { r.logTask(task) }()

	token, err := r.interactive.Solve(ctx, siteKey, pageURL)
	if err != nil {
		r.log.Warn("Interactive challenge unresolved", zap.Error(err))
		return false, nil
	}
	if token == "" {
		// Soft skip or wait-budget timeout.
		return false, nil
	}
	task.Result = token

	if err := r.injector.InjectToken(ctx, token); err != nil {
		r.log.Warn("Token injection failed", zap.Error(err))
		return false, nil
	}

	// The widget does not observe the field it owns; clicking its checkbox
	// settles its visual state. Best-effort: the injected token stands on
	// its own when the click cannot land.
	if err := r.injector.ActivateWidget(ctx); err != nil {
		r.log.Debug("Widget activation skipped", zap.Error(err))
	}

	length, err := r.injector.TokenFieldLength(ctx)
	if err != nil {
		r.log.Warn("Token read-back failed", zap.Error(err))
		return false, nil
	}
	if length < minInjectedTokenLength {
		r.log.Warn("Injected token read back too short, treating as unsolved",
			zap.Int("length", length))
		return false, nil
	}

	r.log.Info("Interactive token verified in place", zap.Int("length", length))
	return true, nil
}
