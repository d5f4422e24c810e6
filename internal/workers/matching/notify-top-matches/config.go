package notifytopmatches

import (
	"time"

	"trainer-match-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}

func FromWorkerConfig(wcfg config.WorkerConfig) *Config {
	cfg := LoadConfig()
	if wcfg.Timeout > 0 {
		cfg.Timeout = config.GetDuration(wcfg.Timeout)
	}
	return cfg
}
