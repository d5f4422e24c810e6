package ranktrainers

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
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/persist"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "rank-trainers"
)

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["requirementId"],
	"properties": {
		"requirementId": {"type": "string", "minLength": 1},
		"k": {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`)

type Ranker interface {
	Rank(ctx context.Context, requirementID string, k int) (*matching.Ranking, error)
}

type Persister interface {
	Persist(ctx context.Context, requirementID string, ranked []matching.RankedCandidate) (*persist.PersistReport, error)
}

type Handler struct {
	config       *Config
	ranker       Ranker
	persister    Persister
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
}

func NewHandler(config *Config, ranker Ranker, persister Persister, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		ranker:       ranker,
		persister:    persister,
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

	k := input.K
	if k <= 0 {
		k = h.config.TopK
	}

	start := time.Now()
	ranking, err := h.ranker.Rank(ctx, input.RequirementID, k)
	if err != nil {
		h.obs.RecordPass(ctx, "rank", "error", time.Since(start))
		return nil, err
	}

	report, err := h.persister.Persist(ctx, input.RequirementID, ranking.Candidates)
	if err != nil {
		h.obs.RecordPass(ctx, "rank", "error", time.Since(start))
		return nil, err
	}
	h.obs.RecordPass(ctx, "rank", "success", time.Since(start))
	h.obs.RecordShortlist(ctx, len(ranking.Candidates))

	for _, f := range report.Failures {
		h.logger.Warn("match result not persisted", map[string]interface{}{
			"requirementId": input.RequirementID,
			"trainerId":     f.TrainerID,
			"error":         f.Err.Error(),
		})
	}

	output := buildOutput(input.RequirementID, ranking, report)

	h.logger.Info("trainers ranked", map[string]interface{}{
		"requirementId": input.RequirementID,
		"k":             k,
		"poolSize":      output.PoolSize,
		"shortlisted":   len(output.RankedTrainers),
		"dropped":       output.DroppedCount,
		"persisted":     output.PersistedCount,
		"failed":        output.FailedCount,
	})

	return output, nil
}

func buildOutput(requirementID string, ranking *matching.Ranking, report *persist.PersistReport) *Output {
	ids := make(map[string]string, len(report.Persisted))
	for _, r := range report.Persisted {
		ids[r.TrainerID] = r.ID
	}

	ranked := make([]RankedTrainer, 0, len(ranking.Candidates))
	for _, c := range ranking.Candidates {
		ranked = append(ranked, RankedTrainer{
			TrainerID:     c.Trainer.ID,
			Name:          c.Trainer.Name,
			Score:         c.Assessment.Score,
			Explanation:   c.Assessment.Explanation,
			Strategy:      string(c.Assessment.Strategy),
			MatchResultID: ids[c.Trainer.ID],
		})
	}

	return &Output{
		RequirementID:  requirementID,
		RankedTrainers: ranked,
		PoolSize:       ranking.PoolSize,
		DroppedCount:   len(ranking.Dropped),
		PersistedCount: len(report.Persisted),
		FailedCount:    len(report.Failures),
		PrunedCount:    report.Pruned,
	}
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
	_, err = cmd.Send(context.Background())
	if err != nil {
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
