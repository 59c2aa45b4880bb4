// File: internal/challenge/interactive.go
package challenge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nkrsz/renewctl/internal/config"
	"github.com/nkrsz/renewctl/internal/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// taskType identifies the proxyless Turnstile task on the solving service.
const taskType = "TurnstileTaskProxyless"

// errPending is the internal signal that the remote task is still running.
var errPending = errors.New("task pending")

type createTaskRequest struct {
	ClientKey string     `json:"clientKey"`
	Task      solverTask `json:"task"`
}

type solverTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           any    `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    any    `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Token string `json:"token"`
	} `json:"solution"`
}

// InteractiveClient obtains bypass tokens for the interactive challenge via
// the asynchronous create-then-poll protocol of the solving service.
type InteractiveClient struct {
	cfg    config.SolverConfig
	client *http.Client
	log    *zap.Logger
}

// NewInteractiveClient builds the client. An empty client key is valid and
// turns Solve into a soft skip.
func NewInteractiveClient(cfg config.SolverConfig, httpClient *http.Client, logger *zap.Logger) *InteractiveClient {
	return &InteractiveClient{
		cfg:    cfg,
		client: httpClient,
		log:    logger.Named("interactive"),
	}
}

// Configured reports whether solving is enabled at all.
func (c *InteractiveClient) Configured() bool {
	return c.cfg.ClientKey != ""
}

// Solve creates a remote solving task and polls until a token is ready, an
// explicit error is reported, or the wait budget elapses. The ceiling and
// the poll cadence come from configuration. A timeout returns "" without
// error: unresolved is a recoverable condition, not a failure. Explicit
// remote errors are not retried within this call; a malformed task will not
// heal by resubmission.
func (c *InteractiveClient) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !c.Configured() {
		// Soft skip: no credential, no network call.
		c.log.Debug("No solver credential configured, skipping interactive challenge")
		return "", nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxWait)
	defer cancel()

	taskID, err := c.createTask(waitCtx, siteKey, pageURL)
	if err != nil {
		return "", fmt.Errorf("creating solver task: %w", err)
	}
	c.log.Info("Solver task created", zap.Any("task_id", taskID))

	attempts := int(c.cfg.MaxWait / c.cfg.PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	// The service never resolves a task instantly; the first result query
	// waits out one interval just like every later one.
	select {
	case <-waitCtx.Done():
		c.log.Warn("Solver wait budget elapsed without a token")
		return "", nil
	case <-time.After(c.cfg.PollInterval):
	}

	token, err := retry.Do(waitCtx, retry.Policy{MaxAttempts: attempts, Delay: c.cfg.PollInterval},
		func() (string, error) {
			return c.pollResult(waitCtx, taskID)
		})
	if err != nil {
		if waitCtx.Err() != nil || errors.Is(err, errPending) {
			// Ceiling breach: unresolved, never an error.
			c.log.Warn("Solver wait budget elapsed without a token")
			return "", nil
		}
		return "", err
	}
	c.log.Info("Solver returned a token")
	return token, nil
}

// createTask registers the challenge with the solving service.
func (c *InteractiveClient) createTask(ctx context.Context, siteKey, pageURL string) (any, error) {
	var resp createTaskResponse
	err := c.post(ctx, c.cfg.CreateTaskURL, createTaskRequest{
		ClientKey: c.cfg.ClientKey,
		Task: solverTask{
			Type:       taskType,
			WebsiteURL: pageURL,
			WebsiteKey: siteKey,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ErrorID != 0 {
		return nil, fmt.Errorf("solver rejected task: %s", resp.ErrorDescription)
	}
	return resp.TaskID, nil
}

// pollResult performs one result query. A still-running task returns
// errPending so the retry layer waits out the poll interval; an explicit
// remote error is permanent.
func (c *InteractiveClient) pollResult(ctx context.Context, taskID any) (string, error) {
	var resp taskResultResponse
	err := c.post(ctx, c.cfg.ResultURL, taskResultRequest{
		ClientKey: c.cfg.ClientKey,
		TaskID:    taskID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ErrorID != 0 {
		return "", retry.Permanent(fmt.Errorf("solver reported error: %s", resp.ErrorDescription))
	}
	if resp.Status != "ready" {
		return "", errPending
	}
	if resp.Solution.Token == "" {
		return "", retry.Permanent(fmt.Errorf("solver reported ready with an empty token"))
	}
	return resp.Solution.Token, nil
}

// post sends a JSON request and decodes the JSON response.
func (c *InteractiveClient) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("solver returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
