package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// APIConfig holds settings for the HTTP API process.
type APIConfig struct {
	Addr           string  `env:"API_ADDR,default=:8080"`
	Node           string  `env:"PROXMOX_NODE,default=pve"`
	TaskMaxRetries int     `env:"TASK_MAX_RETRIES,default=3"`
	CreationCost   float64 `env:"BILLING_CREATION_COST,default=10"`
	HourlyPrice    float64 `env:"BILLING_HOURLY_PRICE,default=0.05"`
}

// WorkerConfig holds settings for the worker process.
type WorkerConfig struct {
	PollInterval     time.Duration `env:"WORKER_POLL_INTERVAL,default=5s"`
	MaxTasksPerCycle int           `env:"WORKER_MAX_TASKS_PER_CYCLE,default=5"`
	StaleAfter       time.Duration `env:"WORKER_STALE_AFTER,default=30m"`
	JanitorInterval  time.Duration `env:"WORKER_JANITOR_INTERVAL,default=1h"`
	RetentionDays    int           `env:"TASK_RETENTION_DAYS,default=30"`
}

// BridgeConfig holds settings for the hypervisor bridge subprocess.
type BridgeConfig struct {
	Python  string        `env:"BRIDGE_PYTHON,default=python3"`
	Script  string        `env:"BRIDGE_SCRIPT,default=scripts/proxmox_bridge.py"`
	Timeout time.Duration `env:"BRIDGE_TIMEOUT,default=5m"`
}

func LoadAPIConfig(ctx context.Context) (*APIConfig, error) {
	var cfg APIConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if cfg.TaskMaxRetries < 1 {
		return nil, fmt.Errorf("TASK_MAX_RETRIES must be at least 1")
	}
	if cfg.CreationCost < 0 {
		return nil, fmt.Errorf("BILLING_CREATION_COST must be non-negative")
	}
	return &cfg, nil
}

func LoadWorkerConfig(ctx context.Context) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if cfg.MaxTasksPerCycle < 1 {
		return nil, fmt.Errorf("WORKER_MAX_TASKS_PER_CYCLE must be at least 1")
	}
	if cfg.StaleAfter < cfg.PollInterval {
		return nil, fmt.Errorf("WORKER_STALE_AFTER must be at least the poll interval")
	}
	return &cfg, nil
}

// ValidateWorkerBridge enforces the invariant tying the two configs together:
// a processing task may only be swept back to pending once its bridge
// subprocess can no longer be running, so the stale window must exceed the
// bridge timeout. Otherwise the janitor could hand the same task to a second
// claimant while the first is still executing it.
func ValidateWorkerBridge(w *WorkerConfig, b *BridgeConfig) error {
	if b.Timeout >= w.StaleAfter {
		return fmt.Errorf("WORKER_STALE_AFTER (%v) must be greater than BRIDGE_TIMEOUT (%v)",
			w.StaleAfter, b.Timeout)
	}
	return nil
}

func LoadBridgeConfig(ctx context.Context) (*BridgeConfig, error) {
	var cfg BridgeConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("BRIDGE_TIMEOUT must be positive")
	}
	return &cfg, nil
}
