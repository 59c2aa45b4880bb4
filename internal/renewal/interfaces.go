// File: internal/renewal/interfaces.go
package renewal

import "context"

// Surface is the typed set of page capabilities the workflow drives. The
// workflow never embeds page-script text; every DOM query and action is a
// named operation whose implementation belongs to the panel collaborator.
// Every call may fail with a timeout; the workflow treats timeouts as
// recoverable, logged conditions unless the call is the operation the step
// exists to perform.
type Surface interface {
	// Login authenticates with the stored credentials and reports whether
	// the panel accepted them.
	Login(ctx context.Context, email, password string) error

	// FindExpiryText returns the raw detail-page row text holding the
	// account expiry date.
	FindExpiryText(ctx context.Context) (string, error)

	// ClickUpdateControl clicks the detail page's update control if present.
	// Best-effort; its absence is not an error worth acting on.
	ClickUpdateControl(ctx context.Context) error

	// OpenRenewalByControl and OpenRenewalByLink try the two in-page routes
	// to the renewal form.
	OpenRenewalByControl(ctx context.Context) error
	OpenRenewalByLink(ctx context.Context) error

	// NavigateRenewalDirect loads the renewal form by URL as a last resort.
	// It reports WindowClosed when the resulting page explicitly states the
	// renewal window is not open.
	NavigateRenewalDirect(ctx context.Context) (OpenResult, error)

	// InteractiveSiteKey reads the interactive challenge's site key if the
	// challenge is present on the form.
	InteractiveSiteKey(ctx context.Context) (key string, present bool, err error)

	// ChallengeImage returns the image challenge as a data URL if present.
	ChallengeImage(ctx context.Context) (data string, present bool, err error)

	// PageURL returns the current page URL.
	PageURL(ctx context.Context) (string, error)

	// SubmitCode fills the solved digits into the form field and submits.
	SubmitCode(ctx context.Context, code string) error

	// ClassifyOutcome scans the post-submission page for known success and
	// error phrase markers.
	ClassifyOutcome(ctx context.Context) (Verdict, error)

	// Refresh reloads the page, yielding a fresh image and a fresh
	// interactive challenge.
	Refresh(ctx context.Context) error

	// Screenshot captures a named checkpoint image. Best-effort; failures
	// never influence the run.
	Screenshot(ctx context.Context, name string)
}

// Resolver obtains validated solved values for the two challenge kinds.
type Resolver interface {
	// SolveImage returns validated challenge digits, or "" when solving was
	// exhausted without a usable value. Exhaustion is recoverable for the
	// caller, not an error.
	SolveImage(ctx context.Context, imageData string) (string, error)

	// SolveInteractive obtains a bypass token for the interactive challenge
	// and injects it into the page, reporting whether a verified token is in
	// place. With no solver credential configured it soft-skips.
	SolveInteractive(ctx context.Context, siteKey, pageURL string) (bool, error)
}
