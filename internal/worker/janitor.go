package worker

import (
	"context"
	"log"
	"time"

	"github.com/vmforge/vmforge/internal/config"
)

// Janitor periodically requeues orphaned processing tasks and prunes
// terminal tasks past the retention window. It runs alongside the worker
// loop in the same process.
type Janitor struct {
	tasks TaskStore
	cfg   *config.WorkerConfig
	quit  chan struct{}
	done  chan struct{}
}

func NewJanitor(tasks TaskStore, cfg *config.WorkerConfig) *Janitor {
	return &Janitor{
		tasks: tasks,
		cfg:   cfg,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	go func() {
		defer close(j.done)

		ticker := time.NewTicker(j.cfg.JanitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.sweep(ctx)
			case <-j.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (j *Janitor) Stop() {
	close(j.quit)
	<-j.done
}

func (j *Janitor) sweep(ctx context.Context) {
	if n, err := j.tasks.ReleaseStale(ctx, j.cfg.StaleAfter); err != nil {
		log.Printf("[janitor][WARN] stale sweep: %v", err)
	} else if n > 0 {
		log.Printf("[janitor] requeued %d stale task(s)", n)
	}

	if n, err := j.tasks.Cleanup(ctx, j.cfg.RetentionDays); err != nil {
		log.Printf("[janitor][WARN] cleanup: %v", err)
	} else if n > 0 {
		log.Printf("[janitor] deleted %d old task(s)", n)
	}
}
