package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkerConfig_Defaults(t *testing.T) {
	cfg, err := LoadWorkerConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.MaxTasksPerCycle)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
	assert.Equal(t, time.Hour, cfg.JanitorInterval)
	assert.Equal(t, 30, cfg.RetentionDays)
}

func TestLoadWorkerConfig_StaleBelowPollInterval(t *testing.T) {
	t.Setenv("WORKER_POLL_INTERVAL", "1m")
	t.Setenv("WORKER_STALE_AFTER", "30s")

	_, err := LoadWorkerConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_STALE_AFTER")
}

func TestLoadBridgeConfig_Defaults(t *testing.T) {
	cfg, err := LoadBridgeConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "python3", cfg.Python)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestValidateWorkerBridge(t *testing.T) {
	tests := []struct {
		name       string
		staleAfter time.Duration
		timeout    time.Duration
		wantErr    bool
	}{
		{
			name:       "stale window exceeds bridge timeout",
			staleAfter: 30 * time.Minute,
			timeout:    5 * time.Minute,
		},
		{
			name:       "bridge timeout exceeds stale window",
			staleAfter: 2 * time.Minute,
			timeout:    5 * time.Minute,
			wantErr:    true,
		},
		{
			name:       "equal durations are rejected",
			staleAfter: 5 * time.Minute,
			timeout:    5 * time.Minute,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkerBridge(
				&WorkerConfig{StaleAfter: tt.staleAfter},
				&BridgeConfig{Timeout: tt.timeout},
			)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "WORKER_STALE_AFTER")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadAPIConfig_Validation(t *testing.T) {
	t.Setenv("TASK_MAX_RETRIES", "0")

	_, err := LoadAPIConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASK_MAX_RETRIES")
}
