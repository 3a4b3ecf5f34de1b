package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/vmforge/vmforge/internal/bridge"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/dto"
	"github.com/vmforge/vmforge/internal/models"
	"github.com/vmforge/vmforge/internal/storage/postgres"
	"gorm.io/datatypes"
)

// TaskStore is the queue surface the worker needs.
type TaskStore interface {
	ClaimNext(ctx context.Context) (*models.Task, error)
	Complete(ctx context.Context, id uint, result datatypes.JSON) error
	Fail(ctx context.Context, id uint, errMsg string) error
	PendingCount(ctx context.Context) (int64, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
}

// InstanceStore is the registry surface the worker needs.
type InstanceStore interface {
	UpdateStatus(ctx context.Context, id uint, status string) error
	ReleaseIP(ctx context.Context, address string) error
}

// Executor runs one hypervisor action to completion.
type Executor interface {
	Run(ctx context.Context, action string, params bridge.Params) bridge.Result
}

// Worker is the single polling loop that drains the task queue: claim the
// oldest pending task, run it through the bridge, apply the resulting
// instance transition and resolve the task. It processes one task at a
// time; the dispatcher and the worker coordinate purely through row locks
// in the database, never through in-process state.
type Worker struct {
	tasks     TaskStore
	instances InstanceStore
	exec      Executor
	cfg       *config.WorkerConfig
	quit      chan struct{}
	done      chan struct{}
}

func New(tasks TaskStore, instances InstanceStore, exec Executor, cfg *config.WorkerConfig) *Worker {
	return &Worker{
		tasks:     tasks,
		instances: instances,
		exec:      exec,
		cfg:       cfg,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the poll loop. Before the first cycle it sweeps processing
// rows orphaned by a previous crash back to pending.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		if n, err := w.tasks.ReleaseStale(ctx, w.cfg.StaleAfter); err != nil {
			log.Printf("[worker][WARN] startup stale sweep: %v", err)
		} else if n > 0 {
			log.Printf("[worker] requeued %d orphaned task(s)", n)
		}

		for {
			w.runCycle(ctx)

			select {
			case <-time.After(w.cfg.PollInterval):
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop tells the loop to quit claiming new tasks and waits for it to exit.
// A task already in flight runs to completion of its attempt.
func (w *Worker) Stop() {
	close(w.quit)
	<-w.done
}

// runCycle claims and processes up to MaxTasksPerCycle tasks. Transient
// store errors end the cycle quietly; the next poll tries again.
func (w *Worker) runCycle(ctx context.Context) {
	pending, err := w.tasks.PendingCount(ctx)
	if err != nil {
		log.Printf("[worker][WARN] pending count: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	for i := 0; i < w.cfg.MaxTasksPerCycle; i++ {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.tasks.ClaimNext(ctx)
		if err != nil {
			if !errors.Is(err, postgres.ErrNoPendingTask) {
				log.Printf("[worker][WARN] claim: %v", err)
			}
			return
		}

		w.process(ctx, task)
	}
}

// process handles exactly one claimed task. Every failure mode, including a
// panic, is absorbed here: one bad task degrades only itself.
func (w *Worker) process(ctx context.Context, task *models.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker][ERROR] panic in task %d: %v", task.ID, r)
			w.resolveFailure(ctx, task, 0, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !slices.Contains(config.AllowedActions, task.Action) {
		w.resolveFailure(ctx, task, 0, fmt.Sprintf("unsupported action %q", task.Action))
		return
	}

	var payload dto.TaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		w.resolveFailure(ctx, task, 0, fmt.Sprintf("invalid task payload: %v", err))
		return
	}

	log.Printf("[worker] task %d: %s vmid %d (attempt %d/%d)",
		task.ID, task.Action, payload.VMID, task.Attempts+1, task.MaxRetries)

	// Provisioning is the one long-running action; surface it as its own
	// state so the panel can distinguish it from a queued operation.
	if task.Action == config.ActionCreate && payload.InstanceID != 0 {
		if err := w.instances.UpdateStatus(ctx, payload.InstanceID, config.InstanceStatusCreating); err != nil {
			log.Printf("[worker][WARN] instance %d status: %v", payload.InstanceID, err)
		}
	}

	res := w.exec.Run(ctx, task.Action, bridge.Params{
		VMID:         payload.VMID,
		Name:         payload.Name,
		VCPU:         payload.VCPU,
		RAMMB:        payload.RAMMB,
		DiskGB:       payload.DiskGB,
		OSTemplate:   payload.OSTemplate,
		IPAddress:    payload.IPAddress,
		Gateway:      payload.Gateway,
		Node:         payload.Node,
		Force:        payload.Force,
		SnapshotName: payload.SnapshotName,
	})

	if !res.Success {
		w.resolveFailure(ctx, task, payload.InstanceID, res.FailureMessage())
		return
	}

	w.resolveSuccess(ctx, task, &payload, res)
}

// resolveSuccess applies the instance transition derived from the action,
// releases the IP lease on delete, and completes the task. The task's
// terminal write happens last: if the process dies mid-sequence the task
// stays retryable instead of being falsely completed.
func (w *Worker) resolveSuccess(ctx context.Context, task *models.Task, payload *dto.TaskPayload, res bridge.Result) {
	if next := successStatus(task.Action); next != "" && payload.InstanceID != 0 {
		if err := w.instances.UpdateStatus(ctx, payload.InstanceID, next); err != nil {
			log.Printf("[worker][WARN] instance %d status: %v", payload.InstanceID, err)
		}
	}

	if task.Action == config.ActionDelete && payload.IPAddress != "" {
		if err := w.instances.ReleaseIP(ctx, payload.IPAddress); err != nil {
			log.Printf("[worker][WARN] release ip %s: %v", payload.IPAddress, err)
		}
	}

	if err := w.tasks.Complete(ctx, task.ID, datatypes.JSON(res.JSON())); err != nil {
		log.Printf("[worker][WARN] complete task %d: %v", task.ID, err)
		return
	}
	log.Printf("[worker] task %d completed", task.ID)
}

// resolveFailure marks the instance error (so the panel shows something is
// wrong even while a retry is pending) and hands the task to the store's
// retry policy. The task write is last for the same crash-safety reason as
// in resolveSuccess.
func (w *Worker) resolveFailure(ctx context.Context, task *models.Task, instanceID uint, msg string) {
	if instanceID != 0 {
		if err := w.instances.UpdateStatus(ctx, instanceID, config.InstanceStatusError); err != nil {
			log.Printf("[worker][WARN] instance %d status: %v", instanceID, err)
		}
	}

	if err := w.tasks.Fail(ctx, task.ID, msg); err != nil {
		log.Printf("[worker][WARN] fail task %d: %v", task.ID, err)
		return
	}
	log.Printf("[worker] task %d failed: %s", task.ID, msg)
}

// successStatus derives the instance status from the action alone. Actions
// that do not change power state return "".
func successStatus(action string) string {
	switch action {
	case config.ActionCreate, config.ActionStart, config.ActionReboot:
		return config.InstanceStatusRunning
	case config.ActionStop:
		return config.InstanceStatusStopped
	case config.ActionDelete:
		return config.InstanceStatusDeleted
	default:
		return ""
	}
}
