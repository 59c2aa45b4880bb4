// File: internal/renewal/status.go
package renewal

import "time"

// Status is the terminal classification of one renewal run. It is set
// exactly once per run by the workflow and read by the reporter and
// notifier.
type Status string

const (
	// StatusUnknown marks an ambiguous outcome: the submission may have
	// silently succeeded. It must never be coerced to Success or Failed.
	StatusUnknown Status = "Unknown"
	// StatusSuccess marks a confirmed renewal.
	StatusSuccess Status = "Success"
	// StatusFailed marks a run that could not complete the renewal.
	StatusFailed Status = "Failed"
	// StatusUnexpired means the renewal window is not open yet. This is a
	// domain-expected non-error, distinct from Failed throughout.
	StatusUnexpired Status = "Unexpired"
)

// IsError reports whether the status represents a run that needs attention.
// Unexpired is an expected outcome and never an error.
func (s Status) IsError() bool {
	return s == StatusFailed || s == StatusUnknown
}

// ExpiryRecord is the expiry date captured from the account detail page.
// Immutable once captured; a second record may be captured after a
// successful renewal to obtain the new date.
type ExpiryRecord struct {
	Date   time.Time
	Source string
}

// Known reports whether an expiry date was actually captured.
func (r ExpiryRecord) Known() bool {
	return !r.Date.IsZero()
}

// Verdict classifies the page shown after submitting the renewal form.
type Verdict int

const (
	// VerdictAmbiguous means neither a success nor an error marker was found.
	VerdictAmbiguous Verdict = iota
	// VerdictSuccess means a known completion phrase was found.
	VerdictSuccess
	// VerdictCodeRejected means a known error phrase was found.
	VerdictCodeRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictCodeRejected:
		return "code-rejected"
	default:
		return "ambiguous"
	}
}

// OpenResult is the tri-state outcome of a renewal-surface opening strategy.
type OpenResult int

const (
	// OpenUnavailable means the strategy could not reach the form; the next
	// strategy should be tried.
	OpenUnavailable OpenResult = iota
	// Opened means the renewal form is now on screen.
	Opened
	// WindowClosed means the page explicitly states the renewal window is
	// not open. This is a domain signal, not a failure.
	WindowClosed
)
