package ranktrainers

import (
	"time"

	"trainer-match-workers/internal/common/config"
	"trainer-match-workers/internal/matching"
)

type Config struct {
	Timeout time.Duration
	TopK    int
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		TopK:    matching.DefaultTopK,
	}
}

// FromWorkerConfig overrides the defaults with the worker's block in the
// application config. Zero values keep the defaults.
func FromWorkerConfig(wcfg config.WorkerConfig, mcfg config.MatchingConfig) *Config {
	cfg := LoadConfig()
	if wcfg.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wcfg.Timeout)
	}
	if mcfg.TopK > 0 {
		cfg.TopK = mcfg.TopK
	}
	return cfg
}
