package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_KeepsStandardErrorThroughWrap(t *testing.T) {
	orig := NewLockUnavailableError("match:req-1:t-1", nil)
	wrapped := fmt.Errorf("persist pair: %w", orig)

	got := Normalize(wrapped)
	assert.Same(t, orig, got)
	assert.True(t, HasCode(wrapped, ErrCodeLockUnavailable))
	assert.False(t, HasCode(wrapped, ErrCodeMatchPersistFailed))
}

func TestNormalize_PlainErrorBecomesInternal(t *testing.T) {
	cause := errors.New("boom")
	got := Normalize(cause)

	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), got.Code)
	assert.Equal(t, "boom", got.Details)
	assert.False(t, got.Retryable)
	assert.ErrorIs(t, got, cause)
}

func TestStandardError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseConnectionFailedError(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "DATABASE_CONNECTION_FAILED")
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      string
		retries   int
		retryable bool
	}{
		{"retryable technical", NewMatchPersistFailedError("req-1", "t-1", errors.New("x")), "MATCH_PERSIST_FAILED", 3, true},
		{"timeout", NewIntelligenceScorerTimeoutError(2 * time.Second), "INTELLIGENCE_SCORER_TIMEOUT", 2, true},
		{"business", NewRequirementNotFoundError("req-9", nil), "REQUIREMENT_NOT_FOUND", 0, false},
		{"rejected command", NewWorkflowEngineRejectedError("complete", errors.New("not found")), "WORKFLOW_ENGINE_REJECTED", 0, false},
		{"unmapped code", &StandardError{Code: "SOMETHING_ELSE", Retryable: true}, "SOMETHING_ELSE", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.code, bpmn.Code)
			assert.Equal(t, tt.retries, bpmn.Retries)
			assert.Equal(t, tt.retryable, bpmn.Retryable)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestBPMNError_ToErrorVariables(t *testing.T) {
	bpmn := ConvertToBPMNError(NewInvalidJobInputError("requirementId is required"))
	vars := bpmn.ToErrorVariables()

	assert.Equal(t, "INVALID_JOB_INPUT", vars["errorCode"])
	assert.Equal(t, "requirementId is required", vars["errorDetails"])
	assert.Equal(t, false, vars["retryable"])
	require.Contains(t, vars, "timestamp")
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeRequirementNotFound:       "RANKING",
		ErrCodeCandidateScoringFailed:    "RANKING",
		ErrCodeIntelligenceScorerTimeout: "AI",
		ErrCodeWorkflowEngineTimeout:     "WORKFLOW",
		ErrCodeLockUnavailable:           "DATABASE",
		ErrCodeMatchPersistFailed:        "DATABASE",
		ErrCodeQueryExecutionFailed:      "DATABASE",
		ErrCodeSearchQueryFailed:         "SEARCH",
		ErrCodeNotificationSendFailed:    "NOTIFICATION",
		ErrCodeInvalidMatchStatus:        "VALIDATION",
		ErrCodeInvalidJobInput:           "VALIDATION",
		ErrorCode("INTERNAL_ERROR"):      "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}
