package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmforge/vmforge/internal/bridge"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/dto"
	"github.com/vmforge/vmforge/internal/models"
	"github.com/vmforge/vmforge/internal/storage/postgres"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubExecutor returns canned results per action and records the calls it
// receives, so tests can assert both the outcome and the bridge traffic.
type stubExecutor struct {
	results map[string]bridge.Result
	calls   []call
}

type call struct {
	action string
	params bridge.Params
}

func (s *stubExecutor) Run(_ context.Context, action string, params bridge.Params) bridge.Result {
	s.calls = append(s.calls, call{action: action, params: params})
	if res, ok := s.results[action]; ok {
		return res
	}
	return bridge.Result{Success: true, Message: "ok"}
}

func setupWorker(t *testing.T, exec Executor) (*Worker, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Instance{}, &models.Task{}, &models.IPLease{},
	))

	cfg := &config.WorkerConfig{
		PollInterval:     10 * time.Millisecond,
		MaxTasksPerCycle: 5,
		StaleAfter:       30 * time.Minute,
		JanitorInterval:  time.Hour,
		RetentionDays:    30,
	}

	w := New(postgres.NewTaskRepository(db), postgres.NewInstanceRepository(db), exec, cfg)
	return w, db
}

func seedInstance(t *testing.T, db *gorm.DB, vmid int, status string) *models.Instance {
	t.Helper()
	ip := "192.168.100.10"
	inst := &models.Instance{
		UserID: 1, Name: "web-1", VMID: &vmid, IPAddress: &ip,
		VCPU: 2, RAMMB: 2048, DiskGB: 20, OSTemplate: "debian-12",
		Status: status, Node: "pve",
	}
	require.NoError(t, db.Create(inst).Error)
	return inst
}

func enqueueTask(t *testing.T, db *gorm.DB, action string, payload dto.TaskPayload, maxRetries int) *models.Task {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	task := &models.Task{
		Action:     action,
		Payload:    datatypes.JSON(b),
		Status:     config.TaskStatusPending,
		MaxRetries: maxRetries,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func TestWorker_StartTask_Success(t *testing.T) {
	exec := &stubExecutor{results: map[string]bridge.Result{
		config.ActionStart: {Success: true, Message: "VM started successfully"},
	}}
	w, db := setupWorker(t, exec)

	inst := seedInstance(t, db, 101, config.InstanceStatusPending)
	task := enqueueTask(t, db, config.ActionStart,
		dto.TaskPayload{InstanceID: inst.ID, VMID: 101, Node: "pve"}, 3)

	w.runCycle(context.Background())

	var gotTask models.Task
	require.NoError(t, db.First(&gotTask, task.ID).Error)
	assert.Equal(t, config.TaskStatusCompleted, gotTask.Status)
	require.NotNil(t, gotTask.FinishedAt)
	assert.Contains(t, string(gotTask.Result), "VM started successfully")

	var gotInst models.Instance
	require.NoError(t, db.First(&gotInst, inst.ID).Error)
	assert.Equal(t, config.InstanceStatusRunning, gotInst.Status)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, config.ActionStart, exec.calls[0].action)
	assert.Equal(t, 101, exec.calls[0].params.VMID)
}

func TestWorker_FailureRetriesThenExhausts(t *testing.T) {
	exec := &stubExecutor{results: map[string]bridge.Result{
		config.ActionCreate: {Success: false, Error: "no storage"},
	}}
	w, db := setupWorker(t, exec)

	inst := seedInstance(t, db, 101, config.InstanceStatusPending)
	task := enqueueTask(t, db, config.ActionCreate,
		dto.TaskPayload{InstanceID: inst.ID, VMID: 101, Node: "pve"}, 3)

	ctx := context.Background()

	// Each cycle claims the requeued task again until retries run out.
	for attempt := 1; attempt <= 2; attempt++ {
		w.runCycle(ctx)

		var got models.Task
		require.NoError(t, db.First(&got, task.ID).Error)
		assert.Equal(t, config.TaskStatusPending, got.Status)
		assert.Equal(t, attempt, got.Attempts)
	}

	w.runCycle(ctx)

	var got models.Task
	require.NoError(t, db.First(&got, task.ID).Error)
	assert.Equal(t, config.TaskStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "no storage", got.Error)
	require.NotNil(t, got.FinishedAt)

	var gotInst models.Instance
	require.NoError(t, db.First(&gotInst, inst.ID).Error)
	assert.Equal(t, config.InstanceStatusError, gotInst.Status)

	assert.Len(t, exec.calls, 3)
}

func TestWorker_Delete_ReleasesIP(t *testing.T) {
	exec := &stubExecutor{}
	w, db := setupWorker(t, exec)

	require.NoError(t, db.Create(&models.IPLease{
		Address: "192.168.100.10", Gateway: "192.168.100.1",
		Allocated: true, UserID: ptr(uint(1)),
	}).Error)

	inst := seedInstance(t, db, 101, config.InstanceStatusPending)
	enqueueTask(t, db, config.ActionDelete,
		dto.TaskPayload{InstanceID: inst.ID, VMID: 101, IPAddress: "192.168.100.10", Node: "pve"}, 3)

	w.runCycle(context.Background())

	var gotInst models.Instance
	require.NoError(t, db.First(&gotInst, inst.ID).Error)
	assert.Equal(t, config.InstanceStatusDeleted, gotInst.Status)

	var lease models.IPLease
	require.NoError(t, db.First(&lease, "address = ?", "192.168.100.10").Error)
	assert.False(t, lease.Allocated)
	assert.Nil(t, lease.UserID)
}

// execFunc adapts a closure to the Executor interface for tests that need
// to observe state mid-run.
type execFunc func(ctx context.Context, action string, params bridge.Params) bridge.Result

func (f execFunc) Run(ctx context.Context, action string, params bridge.Params) bridge.Result {
	return f(ctx, action, params)
}

func TestWorker_CreateMarksInstanceCreating(t *testing.T) {
	var (
		db     *gorm.DB
		instID uint
		midRun string
	)

	exec := execFunc(func(_ context.Context, _ string, _ bridge.Params) bridge.Result {
		var inst models.Instance
		if err := db.First(&inst, instID).Error; err == nil {
			midRun = inst.Status
		}
		return bridge.Result{Success: true, Message: "VM created successfully"}
	})

	w, wdb := setupWorker(t, exec)
	db = wdb

	inst := seedInstance(t, db, 101, config.InstanceStatusPending)
	instID = inst.ID
	enqueueTask(t, db, config.ActionCreate,
		dto.TaskPayload{InstanceID: inst.ID, VMID: 101, Node: "pve"}, 3)

	w.runCycle(context.Background())

	// While the bridge was provisioning the instance showed creating; once
	// it succeeded the instance moved to running.
	assert.Equal(t, config.InstanceStatusCreating, midRun)

	var got models.Instance
	require.NoError(t, db.First(&got, inst.ID).Error)
	assert.Equal(t, config.InstanceStatusRunning, got.Status)
}

func TestWorker_UnknownActionFailsWithoutBridgeCall(t *testing.T) {
	exec := &stubExecutor{}
	w, db := setupWorker(t, exec)

	task := enqueueTask(t, db, "defrag", dto.TaskPayload{VMID: 101, Node: "pve"}, 1)

	w.runCycle(context.Background())

	var got models.Task
	require.NoError(t, db.First(&got, task.ID).Error)
	assert.Equal(t, config.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "unsupported action")

	assert.Empty(t, exec.calls)
}

func TestWorker_MalformedPayloadFailsWithoutBridgeCall(t *testing.T) {
	exec := &stubExecutor{}
	w, db := setupWorker(t, exec)

	task := &models.Task{
		Action:     config.ActionStart,
		Payload:    datatypes.JSON([]byte(`{not json`)),
		Status:     config.TaskStatusPending,
		MaxRetries: 1,
	}
	require.NoError(t, db.Create(task).Error)

	w.runCycle(context.Background())

	var got models.Task
	require.NoError(t, db.First(&got, task.ID).Error)
	assert.Equal(t, config.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "invalid task payload")

	assert.Empty(t, exec.calls)
}

func TestWorker_SnapshotLeavesInstanceStatusAlone(t *testing.T) {
	exec := &stubExecutor{results: map[string]bridge.Result{
		config.ActionSnapshotCreate: {Success: true, Message: "snapshot created"},
	}}
	w, db := setupWorker(t, exec)

	inst := seedInstance(t, db, 101, config.InstanceStatusRunning)
	task := enqueueTask(t, db, config.ActionSnapshotCreate,
		dto.TaskPayload{InstanceID: inst.ID, VMID: 101, Node: "pve", SnapshotName: "nightly"}, 3)

	w.runCycle(context.Background())

	var got models.Task
	require.NoError(t, db.First(&got, task.ID).Error)
	assert.Equal(t, config.TaskStatusCompleted, got.Status)

	var gotInst models.Instance
	require.NoError(t, db.First(&gotInst, inst.ID).Error)
	assert.Equal(t, config.InstanceStatusRunning, gotInst.Status)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "nightly", exec.calls[0].params.SnapshotName)
}

func TestWorker_ProcessesFIFO(t *testing.T) {
	exec := &stubExecutor{}
	w, db := setupWorker(t, exec)

	base := time.Now().UTC().Add(-time.Minute)
	for i, action := range []string{config.ActionStart, config.ActionStop, config.ActionReboot} {
		b, err := json.Marshal(dto.TaskPayload{VMID: 101 + i, Node: "pve"})
		require.NoError(t, err)
		require.NoError(t, db.Create(&models.Task{
			Action:     action,
			Payload:    datatypes.JSON(b),
			Status:     config.TaskStatusPending,
			MaxRetries: 3,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	w.runCycle(context.Background())

	require.Len(t, exec.calls, 3)
	assert.Equal(t, config.ActionStart, exec.calls[0].action)
	assert.Equal(t, config.ActionStop, exec.calls[1].action)
	assert.Equal(t, config.ActionReboot, exec.calls[2].action)
}

func TestWorker_StartAndStop(t *testing.T) {
	exec := &stubExecutor{}
	w, db := setupWorker(t, exec)

	// An orphaned processing row from a previous run is swept back to
	// pending before the first cycle, then picked up.
	stale := time.Now().UTC().Add(-time.Hour)
	b, err := json.Marshal(dto.TaskPayload{VMID: 101, Node: "pve"})
	require.NoError(t, err)
	task := &models.Task{
		Action:     config.ActionStart,
		Payload:    datatypes.JSON(b),
		Status:     config.TaskStatusProcessing,
		MaxRetries: 3,
		StartedAt:  &stale,
	}
	require.NoError(t, db.Create(task).Error)

	w.Start(context.Background())

	require.Eventually(t, func() bool {
		var got models.Task
		if err := db.First(&got, task.ID).Error; err != nil {
			return false
		}
		return got.Status == config.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
}

func ptr[T any](v T) *T { return &v }
