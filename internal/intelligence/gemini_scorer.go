package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/matching"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

const scoringInstruction = `You rate how well a freelance trainer fits a training requirement.
Answer with a single JSON object and nothing else:
{"score": <number between 0 and 1>, "explanation": "<one or two sentences>"}`

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiScorer asks a Gemini model for a verdict.
type GeminiScorer struct {
	models    contentGenerator
	modelName string
}

func NewGeminiScorer(ctx context.Context, apiKey, model string) (*GeminiScorer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiScorer(client.Models, model), nil
}

func newGeminiScorer(models contentGenerator, model string) *GeminiScorer {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiScorer{models: models, modelName: model}
}

func (g *GeminiScorer) Model() string { return g.modelName }

func (g *GeminiScorer) Score(ctx context.Context, requirementContext, candidateContext string) (matching.Verdict, error) {
	prompt := requirementContext + "\n\n" + candidateContext

	var temperature float32
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: scoringInstruction}}},
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(fmt.Errorf("generate content: %w", err))
	}

	text := responseText(resp)
	if text == "" {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(errors.New("gemini api returned empty response"))
	}

	v, err := parseVerdict(text)
	if err != nil {
		return matching.Verdict{}, apperrors.NewIntelligenceScorerFailedError(err)
	}
	return v, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

func parseVerdict(raw string) (matching.Verdict, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return matching.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	score := coerceFloat(payload["score"])
	if math.IsNaN(score) {
		return matching.Verdict{}, fmt.Errorf("verdict has no numeric score: %v", payload["score"])
	}
	explanation, _ := payload["explanation"].(string)
	return matching.Verdict{Score: score, Explanation: strings.TrimSpace(explanation)}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
