// Package intelligence holds the external scorers used as the primary
// strategy: a generic HTTP scoring service and Google Gemini.
package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
	httpclient "trainer-match-workers/internal/common/http"
	"trainer-match-workers/internal/common/validation"
	"trainer-match-workers/internal/matching"
)

var verdictSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": "number"},
		"explanation": {"type": "string"}
	}
}`)

type scoreRequest struct {
	Requirement string `json:"requirement"`
	Candidate   string `json:"candidate"`
	Model       string `json:"model,omitempty"`
}

// HTTPScorer posts both contexts to a scoring service that answers
// {"score": <number>, "explanation": <string>}.
type HTTPScorer struct {
	client  *httpclient.Client
	url     string
	apiKey  string
	model   string
	timeout time.Duration
}

func NewHTTPScorer(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *HTTPScorer {
	return &HTTPScorer{
		client:  httpclient.NewClient(timeout).WithRetries(maxRetries, 200*time.Millisecond),
		url:     strings.TrimRight(baseURL, "/") + "/score",
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
	}
}

func (s *HTTPScorer) Score(ctx context.Context, requirementContext, candidateContext string) (matching.Verdict, error) {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	body, err := s.client.PostJSON(ctx, s.url, headers, scoreRequest{
		Requirement: requirementContext,
		Candidate:   candidateContext,
		Model:       s.model,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return matching.Verdict{}, apperrors.NewIntelligenceScorerTimeoutError(s.timeout)
		}
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(err)
	}

	res, err := verdictSchema.ValidateBytes(body)
	if err != nil {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(err)
	}
	if err := res.Err(); err != nil {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(err)
	}

	var v matching.Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(fmt.Errorf("decode verdict: %w", err))
	}
	return v, nil
}
