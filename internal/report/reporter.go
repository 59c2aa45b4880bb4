// File: internal/report/reporter.go

// Package report persists the terminal outcome of a run: a machine-readable
// cache overwritten wholesale, and a human-readable status file. Writes are
// best-effort; a run that completed must never be failed by its paperwork.
package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/renewal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CachedState is the persisted record of the most recent run. It is read
// back only for diagnostics; eligibility is always recomputed from the live
// detail page.
type CachedState struct {
	LastExpiry string `json:"last_expiry"`
	Status     string `json:"status"`
	LastCheck  string `json:"last_check"`
	VPSID      string `json:"vps_id"`
}

// Reporter writes the two run artifacts.
type Reporter struct {
	cfg   config.ReportConfig
	vpsID string
	log   *zap.Logger
}

// NewReporter builds a reporter for the configured artifact paths.
func NewReporter(cfg config.ReportConfig, vpsID string, logger *zap.Logger) *Reporter {
	return &Reporter{
		cfg:   cfg,
		vpsID: vpsID,
		log:   logger.Named("report"),
	}
}

// Report maps the outcome to both artifacts and writes them. I/O failures
// are logged and swallowed.
func (r *Reporter) Report(outcome renewal.Outcome) CachedState {
	state := r.buildState(outcome)

	if err := r.writeCache(state); err != nil {
		r.log.Warn("Cache write failed", zap.String("path", r.cfg.CachePath), zap.Error(err))
	}
	if err := r.writeStatus(outcome); err != nil {
		r.log.Warn("Status write failed", zap.String("path", r.cfg.StatusPath), zap.Error(err))
	}
	return state
}

func (r *Reporter) buildState(outcome renewal.Outcome) CachedState {
	expiry := outcome.ExpiryAfter
	if !expiry.Known() {
		expiry = outcome.ExpiryBefore
	}

	state := CachedState{
		Status:    string(outcome.Status),
		LastCheck: outcome.FinishedAt.UTC().Format(time.RFC3339),
		VPSID:     r.vpsID,
	}
	if expiry.Known() {
		state.LastExpiry = expiry.Date.Format("2006-01-02")
	}
	return state
}

func (r *Reporter) writeCache(state CachedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	return os.WriteFile(r.cfg.CachePath, data, 0o644)
}

func (r *Reporter) writeStatus(outcome renewal.Outcome) error {
	return os.WriteFile(r.cfg.StatusPath, []byte(RenderStatus(outcome)), 0o644)
}

// Load reads the cached state back. Used for diagnostics only; a missing or
// unreadable cache is reported as an error for the caller to log.
func (r *Reporter) Load() (CachedState, error) {
	var state CachedState
	data, err := os.ReadFile(r.cfg.CachePath)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decoding cache: %w", err)
	}
	return state, nil
}

// statusHeadings carry the human wording per terminal status.
var statusHeadings = map[renewal.Status]string{
	renewal.StatusSuccess:   "Renewal completed",
	renewal.StatusUnexpired: "Not yet in the renewal window",
	renewal.StatusFailed:    "Renewal failed",
	renewal.StatusUnknown:   "Outcome unclear, manual check needed",
}

// RenderStatus produces the markdown status artifact. Timestamps display in
// JST, the panel's own zone.
func RenderStatus(outcome renewal.Outcome) string {
	heading, ok := statusHeadings[outcome.Status]
	if !ok {
		heading = string(outcome.Status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# VPS Renewal Status\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", heading)
	fmt.Fprintf(&b, "- Run: %s\n", outcome.FinishedAt.In(renewal.JST).Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Status: %s\n", outcome.Status)

	if outcome.ExpiryBefore.Known() {
		fmt.Fprintf(&b, "- Expiry before: %s\n", outcome.ExpiryBefore.Date.Format("2006-01-02"))
	}
	if outcome.ExpiryAfter.Known() {
		fmt.Fprintf(&b, "- Expiry after: %s\n", outcome.ExpiryAfter.Date.Format("2006-01-02"))
	}
	if outcome.ErrorDetail != "" {
		fmt.Fprintf(&b, "- Detail: %s\n", outcome.ErrorDetail)
	}
	return b.String()
}
