package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/ports"
	"pairnet/pkg/circuitbreaker"
)

const defaultTimeout = 10 * time.Second

// Client calls a remote reasoning backend that evaluates how valuable a
// conversation between two profiles would be. The backend is optional: every
// call is bounded by a timeout and guarded by a circuit breaker, and callers
// are expected to fall back to local scoring on any error.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.ReasoningService = (*Client)(nil)

// NewClient creates a reasoning client. timeout bounds each evaluation call
// end to end; zero means the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			MaxRequestsHalfOpen: 2,
		}),
		logger: logger,
	}
}

type profilePayload struct {
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Company  string   `json:"company"`
	Industry string   `json:"industry"`
	Goals    []string `json:"goals"`
	Skills   []string `json:"skills"`
	Bio      string   `json:"bio,omitempty"`
}

type evaluateRequest struct {
	ProfileA profilePayload `json:"profile_a"`
	ProfileB profilePayload `json:"profile_b"`
}

type evaluateResponse struct {
	Score                int      `json:"score"`
	Rationale            string   `json:"rationale"`
	Strengths            []string `json:"strengths"`
	Opportunities        []string `json:"opportunities"`
	ConversationStarters []string `json:"conversation_starters"`
}

// Evaluate asks the backend to score a pair of profiles. The returned score
// is clamped to [0, 100].
func (c *Client) Evaluate(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error) {
	var result *domain.Compatibility
	err := c.breaker.Execute(ctx, func() error {
		r, err := c.evaluate(ctx, a, b)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) evaluate(ctx context.Context, a, b domain.Profile) (*domain.Compatibility, error) {
	body, err := json.Marshal(evaluateRequest{
		ProfileA: toPayload(a),
		ProfileB: toPayload(b),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reasoning request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the log line; the body is not trusted.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warnw("Reasoning backend returned non-OK status",
			"status", resp.StatusCode,
			"body", string(snippet))
		return nil, fmt.Errorf("reasoning backend returned status %d", resp.StatusCode)
	}

	var out evaluateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation response: %w", err)
	}

	score := out.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &domain.Compatibility{
		Score:                score,
		Rationale:            out.Rationale,
		Strengths:            out.Strengths,
		Opportunities:        out.Opportunities,
		ConversationStarters: out.ConversationStarters,
	}, nil
}

func toPayload(p domain.Profile) profilePayload {
	return profilePayload{
		Name:     p.Name,
		Role:     p.Role,
		Company:  p.Company,
		Industry: p.Industry,
		Goals:    p.Goals,
		Skills:   p.Skills,
		Bio:      p.Bio,
	}
}
