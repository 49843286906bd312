package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// WorkerEnv carries deployment-level overrides for the dispatch worker.
// Zero values mean "use the config file setting".
type WorkerEnv struct {
	DispatchInterval time.Duration `envconfig:"DISPATCH_INTERVAL"`
	BatchSize        int           `envconfig:"DISPATCH_BATCH_SIZE"`
	HealthPort       int           `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
}

func LoadWorkerEnv() (*WorkerEnv, error) {
	var env WorkerEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Apply folds the env overrides into the dispatch config.
func (e *WorkerEnv) Apply(cfg *DispatchConfig) {
	if e.DispatchInterval > 0 {
		cfg.Interval = e.DispatchInterval
	}
	if e.BatchSize > 0 {
		cfg.BatchSize = e.BatchSize
	}
}
