// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Ranking pass
	ErrCodeRequirementNotFound      ErrorCode = "REQUIREMENT_NOT_FOUND"
	ErrCodeCandidatePoolUnavailable ErrorCode = "CANDIDATE_POOL_UNAVAILABLE"
	ErrCodeCandidateScoringFailed   ErrorCode = "CANDIDATE_SCORING_FAILED"
	ErrCodeInvalidJobInput          ErrorCode = "INVALID_JOB_INPUT"

	// External intelligence
	ErrCodeIntelligenceScorerFailed  ErrorCode = "INTELLIGENCE_SCORER_FAILED"
	ErrCodeIntelligenceScorerTimeout ErrorCode = "INTELLIGENCE_SCORER_TIMEOUT"

	// Persistence
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeMatchPersistFailed       ErrorCode = "MATCH_PERSIST_FAILED"
	ErrCodeInvalidMatchStatus       ErrorCode = "INVALID_MATCH_STATUS"
	ErrCodeLockUnavailable          ErrorCode = "LOCK_UNAVAILABLE"

	// Search
	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"

	// Notification
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	// Workflow engine
	ErrCodeWorkflowEngineUnavailable ErrorCode = "WORKFLOW_ENGINE_UNAVAILABLE"
	ErrCodeWorkflowEngineTimeout     ErrorCode = "WORKFLOW_ENGINE_TIMEOUT"
	ErrCodeWorkflowEngineRejected    ErrorCode = "WORKFLOW_ENGINE_REJECTED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is keeps working across the boundary.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewRequirementNotFoundError creates a non-retryable error for an unknown requirement.
func NewRequirementNotFoundError(requirementID string, cause error) *StandardError {
	return newError(ErrCodeRequirementNotFound, "Training requirement not found",
		fmt.Sprintf("requirementId: %s", requirementID), false, cause)
}

// NewCandidatePoolUnavailableError creates a retryable error for an unreadable trainer pool.
func NewCandidatePoolUnavailableError(err error) *StandardError {
	return newError(ErrCodeCandidatePoolUnavailable, "Trainer pool could not be read", err.Error(), true, err)
}

// NewCandidateScoringFailedError is used when a single trainer could not be scored.
func NewCandidateScoringFailedError(trainerID string, err error) *StandardError {
	return newError(ErrCodeCandidateScoringFailed, "Candidate scoring failed",
		fmt.Sprintf("trainerId: %s, error: %s", trainerID, err.Error()), false, err)
}

// NewInvalidJobInputError creates a non-retryable job variable error.
func NewInvalidJobInputError(details string) *StandardError {
	return newError(ErrCodeInvalidJobInput, "Invalid job input", details, false, nil)
}

// NewIntelligenceScorerFailedError creates a retryable external scorer error.
func NewIntelligenceScorerFailedError(err error) *StandardError {
	return newError(ErrCodeIntelligenceScorerFailed, "Intelligence scorer API error", err.Error(), true, err)
}

// NewIntelligenceScorerTimeoutError creates a retryable external scorer timeout.
func NewIntelligenceScorerTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeIntelligenceScorerTimeout, "Intelligence scorer timeout",
		fmt.Sprintf("call exceeded %s", timeout), true, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true, err)
}

// NewMatchPersistFailedError wraps a failed upsert of a single (requirement, trainer) pair.
func NewMatchPersistFailedError(requirementID, trainerID string, err error) *StandardError {
	return newError(ErrCodeMatchPersistFailed, "Match result persistence failed",
		fmt.Sprintf("requirementId: %s, trainerId: %s, error: %s", requirementID, trainerID, err.Error()), true, err)
}

// NewInvalidMatchStatusError rejects a status outside PENDING/ACCEPTED/REJECTED.
func NewInvalidMatchStatusError(value string) *StandardError {
	return newError(ErrCodeInvalidMatchStatus, "Invalid match status",
		fmt.Sprintf("status: %q", value), false, nil)
}

// NewLockUnavailableError reports a per-key lock that could not be taken before the deadline.
func NewLockUnavailableError(key string, err error) *StandardError {
	details := fmt.Sprintf("key: %s", key)
	if err != nil {
		details = fmt.Sprintf("%s, error: %s", details, err.Error())
	}
	return newError(ErrCodeLockUnavailable, "Lock could not be acquired", details, true, err)
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

// NewWorkflowEngineUnavailableError reports a broker that could not be reached.
func NewWorkflowEngineUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineUnavailable, "Zeebe broker unavailable",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

// NewWorkflowEngineTimeoutError reports a Zeebe command that hit its deadline.
func NewWorkflowEngineTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineTimeout, "Zeebe command timeout",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

// NewWorkflowEngineRejectedError reports a command the broker refused (not found, permission, conflict).
func NewWorkflowEngineRejectedError(operation string, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineRejected, "Zeebe command rejected",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeRequirementNotFound:       "REQUIREMENT_NOT_FOUND",
	ErrCodeCandidatePoolUnavailable:  "CANDIDATE_POOL_UNAVAILABLE",
	ErrCodeCandidateScoringFailed:    "CANDIDATE_SCORING_FAILED",
	ErrCodeInvalidJobInput:           "INVALID_JOB_INPUT",
	ErrCodeIntelligenceScorerFailed:  "INTELLIGENCE_SCORER_FAILED",
	ErrCodeIntelligenceScorerTimeout: "INTELLIGENCE_SCORER_TIMEOUT",
	ErrCodeDatabaseConnectionFailed:  "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:      "QUERY_EXECUTION_FAILED",
	ErrCodeMatchPersistFailed:        "MATCH_PERSIST_FAILED",
	ErrCodeInvalidMatchStatus:        "INVALID_MATCH_STATUS",
	ErrCodeLockUnavailable:           "LOCK_UNAVAILABLE",
	ErrCodeSearchQueryFailed:         "SEARCH_QUERY_FAILED",
	ErrCodeNotificationSendFailed:    "NOTIFICATION_SEND_FAILED",
	ErrCodeWorkflowEngineUnavailable: "WORKFLOW_ENGINE_UNAVAILABLE",
	ErrCodeWorkflowEngineTimeout:     "WORKFLOW_ENGINE_TIMEOUT",
	ErrCodeWorkflowEngineRejected:    "WORKFLOW_ENGINE_REJECTED",
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCandidatePoolUnavailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeMatchPersistFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeIntelligenceScorerFailed,
		ErrCodeWorkflowEngineUnavailable:
		return 3

	case ErrCodeLockUnavailable,
		ErrCodeIntelligenceScorerTimeout,
		ErrCodeWorkflowEngineTimeout:
		return 2

	default:
		return 0 // business errors
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err looking for a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REQUIREMENT") || strings.Contains(codeStr, "CANDIDATE"):
		return "RANKING"
	case strings.Contains(codeStr, "INTELLIGENCE"):
		return "AI"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") ||
		strings.Contains(codeStr, "PERSIST") || strings.Contains(codeStr, "LOCK"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
