// evaluator/http_client.go
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	perm_errors "github.com/cloudgate-io/permcache/errors"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/model"
)

// HTTPClient talks to a remote evaluator service over JSON/HTTP. It
// implements both Client and BatchClient.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type evaluateResponse struct {
	Allow       bool      `json:"allow"`
	RoleContext []string  `json:"role_context,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

func (r evaluateResponse) decision() model.Decision {
	evaluatedAt := r.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now()
	}
	if r.Allow {
		return model.Allow(r.RoleContext, evaluatedAt)
	}
	return model.Deny(r.Reason, evaluatedAt)
}

// Evaluate asks the evaluator for an authoritative decision.
func (hc *HTTPClient) Evaluate(ctx context.Context, req model.CheckRequest) (model.Decision, error) {
	var resp evaluateResponse
	if err := hc.post(ctx, "/v1/evaluate", req, &resp); err != nil {
		return model.Decision{}, err
	}
	return resp.decision(), nil
}

// EvaluateBatch asks for decisions on several tuples in one call. The
// response must carry one decision per request, in order.
func (hc *HTTPClient) EvaluateBatch(ctx context.Context, reqs []model.CheckRequest) ([]model.Decision, error) {
	payload := struct {
		Requests []model.CheckRequest `json:"requests"`
	}{Requests: reqs}
	var resp struct {
		Results []evaluateResponse `json:"results"`
	}
	if err := hc.post(ctx, "/v1/evaluate/batch", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(reqs) {
		return nil, fmt.Errorf("%w: batch response has %d results for %d requests",
			perm_errors.ErrEvaluatorUnavailable, len(resp.Results), len(reqs))
	}
	decisions := make([]model.Decision, len(resp.Results))
	for i, r := range resp.Results {
		decisions[i] = r.decision()
	}
	return decisions, nil
}

func (hc *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build evaluator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.httpClient.Do(req)
	if err != nil {
		logger.Warn("Evaluator request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", perm_errors.ErrEvaluatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Evaluator returned non-OK status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d", perm_errors.ErrEvaluatorUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: undecodable response: %v", perm_errors.ErrEvaluatorUnavailable, err)
	}
	return nil
}
