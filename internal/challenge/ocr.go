// File: internal/challenge/ocr.go
package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/retry"
)

// digitRun matches the first run of digits in the OCR response text.
var digitRun = regexp.MustCompile(`\d+`)

const (
	// maxCodeLength is the longest code the panel ever renders.
	maxCodeLength = 6
	minCodeLength = 4

	ocrMaxAttempts = 3
)

// ExtractCode pulls the first digit run out of free-form OCR response text,
// truncated to the panel's maximum code length.
func ExtractCode(text string) string {
	code := digitRun.FindString(strings.TrimSpace(text))
	if len(code) > maxCodeLength {
		code = code[:maxCodeLength]
	}
	return code
}

// ValidateCode reports whether a solved value is plausible: 4-6 characters,
// all digits, and not a single repeated digit. An OCR service returning the
// same digit across the whole code is almost always misreading noise.
func ValidateCode(code string) bool {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return false
	}
	distinct := map[rune]bool{}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
		distinct[r] = true
	}
	return len(distinct) > 1
}

// OCRClient calls the external OCR challenge service.
type OCRClient struct {
	endpoint   string
	timeout    time.Duration
	retryDelay time.Duration
	client     *http.Client
	log        *zap.Logger
}

// NewOCRClient builds the OCR client from the solver configuration.
func NewOCRClient(cfg config.SolverConfig, httpClient *http.Client, logger *zap.Logger) *OCRClient {
	return &OCRClient{
		endpoint:   cfg.OCREndpoint,
		timeout:    cfg.OCRTimeout,
		retryDelay: cfg.OCRRetryDelay,
		client:     httpClient,
		log:        logger.Named("ocr"),
	}
}

// Solve posts the challenge image and returns a validated code along with
// the number of attempts consumed. Call failures and implausible responses
// both consume an attempt; the budget is 3 attempts with a fixed pause
// between them. Exhaustion returns an error the caller may treat as a
// recoverable "unresolved".
func (c *OCRClient) Solve(ctx context.Context, imageData string) (string, int, error) {
	if imageData == "" {
		return "", 0, fmt.Errorf("empty challenge image")
	}
	if c.endpoint == "" {
		return "", 0, fmt.Errorf("no OCR endpoint configured")
	}

	attempts := 0
	code, err := retry.Do(ctx, retry.Policy{MaxAttempts: ocrMaxAttempts, Delay: c.retryDelay},
		func() (string, error) {
			attempts++
			code, err := c.recognize(ctx, imageData)
			if err != nil {
				c.log.Warn("OCR attempt failed", zap.Int("attempt", attempts), zap.Error(err))
				return "", err
			}
			if !ValidateCode(code) {
				c.log.Warn("OCR returned an implausible code", zap.String("code", code))
				return "", fmt.Errorf("implausible code %q", code)
			}
			c.log.Info("OCR solved the image challenge", zap.String("code", code))
			return code, nil
		})
	return code, attempts, err
}

// recognize performs one request against the OCR service.
func (c *OCRClient) recognize(ctx context.Context, imageData string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, strings.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("building OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("reading OCR response: %w", err)
	}

	code := ExtractCode(string(body))
	if code == "" {
		return "", fmt.Errorf("no digits in OCR response %q", strings.TrimSpace(string(body)))
	}
	return code, nil
}
