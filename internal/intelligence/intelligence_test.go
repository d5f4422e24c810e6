package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/matching"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// ==========================
// HTTPScorer
// ==========================

func TestHTTPScorer_ReturnsVerdict(t *testing.T) {
	var got scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"score": 0.83, "explanation": "strong overlap"}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL+"/", "secret", "matcher-v2", time.Second, 0)
	v, err := s.Score(context.Background(), "req ctx", "cand ctx")

	require.NoError(t, err)
	assert.Equal(t, matching.Verdict{Score: 0.83, Explanation: "strong overlap"}, v)
	assert.Equal(t, scoreRequest{Requirement: "req ctx", Candidate: "cand ctx", Model: "matcher-v2"}, got)
}

func TestHTTPScorer_RejectsSchemaInvalidResponse(t *testing.T) {
	for _, body := range []string{`{"explanation": "no score"}`, `{"score": "high"}`, `[]`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		s := NewHTTPScorer(srv.URL, "", "", time.Second, 0)
		_, err := s.Score(context.Background(), "r", "c")
		require.Error(t, err, body)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIntelligenceScorerFailed), body)
		srv.Close()
	}
}

func TestHTTPScorer_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"score": 0.5}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", "", time.Second, 2)
	v, err := s.Score(context.Background(), "r", "c")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.Score)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPScorer_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", "", time.Second, 3)
	_, err := s.Score(context.Background(), "r", "c")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIntelligenceScorerFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPScorer_DeadlineMapsToTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := NewHTTPScorer(srv.URL, "", "", 5*time.Second, 0)
	_, err := s.Score(ctx, "r", "c")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIntelligenceScorerTimeout))
}

// ==========================
// GeminiScorer
// ==========================

type stubGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	prompt string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model = model
	s.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		s.prompt = contents[0].Parts[0].Text
	}
	return s.resp, s.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeminiScorer_ParsesVerdict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want matching.Verdict
	}{
		{name: "plain json", text: `{"score": 0.72, "explanation": "good fit"}`, want: matching.Verdict{Score: 0.72, Explanation: "good fit"}},
		{name: "fenced json", text: "```json\n{\"score\": 0.4, \"explanation\": \" partial \"}\n```", want: matching.Verdict{Score: 0.4, Explanation: "partial"}},
		{name: "string score", text: `{"score": "0.9"}`, want: matching.Verdict{Score: 0.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{resp: textResponse(tt.text)}
			s := newGeminiScorer(gen, "")

			v, err := s.Score(context.Background(), "requirement", "candidate")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, defaultGeminiModel, gen.model)
			assert.Equal(t, "requirement\n\ncandidate", gen.prompt)
			assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
		})
	}
}

func TestGeminiScorer_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "api error", gen: &stubGenerator{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}}},
		{name: "empty response", gen: &stubGenerator{resp: &genai.GenerateContentResponse{}}},
		{name: "not json", gen: &stubGenerator{resp: textResponse("I think 0.8")}},
		{name: "missing score", gen: &stubGenerator{resp: textResponse(`{"explanation": "x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGeminiScorer(tt.gen, "gemini-2.5-pro")
			_, err := s.Score(context.Background(), "r", "c")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIntelligenceScorerFailed))
		})
	}
}

func TestNewGeminiScorer_RequiresKey(t *testing.T) {
	_, err := NewGeminiScorer(context.Background(), "  ", "")
	assert.Error(t, err)
}

// ==========================
// Cache
// ==========================

type countingScorer struct {
	calls int32
	v     matching.Verdict
	err   error
}

func (c *countingScorer) Score(ctx context.Context, _, _ string) (matching.Verdict, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.v, c.err
}

func TestWithCache_HitSkipsScorer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countingScorer{v: matching.Verdict{Score: 0.66, Explanation: "cached"}}
	s := WithCache(inner, NewCache(client, time.Minute), "http", logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		v, err := s.Score(context.Background(), "r", "c")
		require.NoError(t, err)
		assert.Equal(t, 0.66, v.Score)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))

	key := CacheKey("http", "r", "c")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestWithCache_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countingScorer{err: errors.New("upstream down")}
	s := WithCache(inner, NewCache(client, time.Minute), "http", logger.NewNoOpLogger())

	_, err := s.Score(context.Background(), "r", "c")
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestWithCache_RedisFailureFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	key := CacheKey("gemini", "r", "c")
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	data, _ := json.Marshal(matching.Verdict{Score: 0.3})
	mock.ExpectSet(key, data, time.Minute).SetErr(errors.New("connection refused"))

	inner := &countingScorer{v: matching.Verdict{Score: 0.3}}
	s := WithCache(inner, NewCache(client, time.Minute), "gemini", logger.NewNoOpLogger())

	v, err := s.Score(context.Background(), "r", "c")
	require.NoError(t, err)
	assert.Equal(t, 0.3, v.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKey_DependsOnEveryPart(t *testing.T) {
	base := CacheKey("a", "b", "c")
	assert.Equal(t, base, CacheKey("a", "b", "c"))
	assert.NotEqual(t, base, CacheKey("a", "bc", ""))
	assert.NotEqual(t, base, CacheKey("x", "b", "c"))
}

func TestWithCache_NilCacheReturnsScorer(t *testing.T) {
	inner := &countingScorer{}
	assert.Same(t, inner, WithCache(inner, nil, "x", logger.NewNoOpLogger()))
}
