package notifytopmatches

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/common/observability"
	"trainer-match-workers/internal/common/validation"
	"trainer-match-workers/internal/matching/notify"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "notify-top-matches"
)

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["requirementId"],
	"properties": {
		"requirementId": {"type": "string", "minLength": 1}
	}
}`)

type Trigger interface {
	NotifyTopMatches(ctx context.Context, requirementID string) (*notify.Report, error)
}

type Handler struct {
	config       *Config
	trigger      Trigger
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
}

func NewHandler(config *Config, trigger Trigger, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		trigger:      trigger,
		errorHandler: apperrors.NewErrorHandler(log),
		obs:          obs,
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, apperrors.NewInvalidJobInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := inputSchema.ValidateValue(input)
	if err != nil {
		return nil, apperrors.NewInvalidJobInputError(err.Error())
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewInvalidJobInputError(err.Error())
	}

	start := time.Now()
	report, err := h.trigger.NotifyTopMatches(ctx, input.RequirementID)
	if err != nil {
		h.obs.RecordPass(ctx, "notify", "error", time.Since(start))
		return nil, err
	}
	h.obs.RecordPass(ctx, "notify", "success", time.Since(start))

	contacts := report.NotifiedContacts
	if contacts == nil {
		contacts = []string{}
	}

	h.logger.Debug("notify pass finished", map[string]interface{}{
		"requirementId": input.RequirementID,
		"attempted":     report.Attempted,
		"notified":      report.NotifiedCount,
		"skipped":       report.Skipped,
		"failed":        len(report.Failures),
	})

	return &Output{
		RequirementID:    input.RequirementID,
		NotifiedCount:    report.NotifiedCount,
		NotifiedContacts: contacts,
		AttemptedCount:   report.Attempted,
		SkippedCount:     report.Skipped,
		FailedCount:      len(report.Failures),
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
