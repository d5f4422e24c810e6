package ranktrainers

type Input struct {
	RequirementID string `json:"requirementId"`
	K             int    `json:"k,omitempty"`
}

type Output struct {
	RequirementID  string          `json:"requirementId"`
	RankedTrainers []RankedTrainer `json:"rankedTrainers"`
	PoolSize       int             `json:"poolSize"`
	DroppedCount   int             `json:"droppedCount"`
	PersistedCount int             `json:"persistedCount"`
	FailedCount    int             `json:"failedCount"`
	PrunedCount    int64           `json:"prunedCount"`
}

type RankedTrainer struct {
	TrainerID     string  `json:"trainerId"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Explanation   string  `json:"explanation"`
	Strategy      string  `json:"strategy"`
	MatchResultID string  `json:"matchResultId,omitempty"`
}
