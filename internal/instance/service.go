package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"slices"

	"github.com/vmforge/vmforge/common"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/dto"
	"github.com/vmforge/vmforge/internal/models"
	"github.com/vmforge/vmforge/internal/storage/postgres"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var snapshotNameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// allowedFrom lists the instance statuses a lifecycle action may be queued
// from. Pending is absent everywhere: it means an operation is already in
// flight.
var allowedFrom = map[string][]string{
	config.ActionStart:          {config.InstanceStatusStopped, config.InstanceStatusError},
	config.ActionStop:           {config.InstanceStatusRunning},
	config.ActionReboot:         {config.InstanceStatusRunning},
	config.ActionDelete:         {config.InstanceStatusRunning, config.InstanceStatusStopped, config.InstanceStatusError, config.InstanceStatusCreating},
	config.ActionStatus:         {config.InstanceStatusRunning, config.InstanceStatusStopped, config.InstanceStatusError},
	config.ActionConsole:        {config.InstanceStatusRunning},
	config.ActionSnapshotList:   {config.InstanceStatusRunning, config.InstanceStatusStopped},
	config.ActionSnapshotCreate: {config.InstanceStatusRunning, config.InstanceStatusStopped},
}

type Service struct {
	db        *gorm.DB
	tasks     *postgres.TaskRepository
	instances *postgres.InstanceRepository
	users     *postgres.UserRepository
	audit     *postgres.AuditRepository
	cfg       *config.APIConfig
}

func NewService(
	db *gorm.DB,
	tasks *postgres.TaskRepository,
	instances *postgres.InstanceRepository,
	users *postgres.UserRepository,
	audit *postgres.AuditRepository,
	cfg *config.APIConfig,
) *Service {
	return &Service{
		db:        db,
		tasks:     tasks,
		instances: instances,
		users:     users,
		audit:     audit,
		cfg:       cfg,
	}
}

var _ ServiceInterface = (*Service)(nil)

// CreateInstance runs the whole admission sequence in one transaction:
// balance deduction, IP allocation, VM id assignment, instance insert and
// task enqueue succeed or fail together. A failure after the debit rolls the
// deduction back.
func (s *Service) CreateInstance(ctx context.Context, userID uint, req *dto.CreateInstanceDTO) (*dto.LifecycleResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if !slices.Contains(config.AllowedTemplates, req.OSTemplate) {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"invalid OS template",
			map[string]any{
				"provided": req.OSTemplate,
				"allowed":  config.AllowedTemplates,
			},
		)
	}

	var (
		inst models.Instance
		task models.Task
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Debit(ctx, userID, s.cfg.CreationCost); err != nil {
			return err
		}

		lease, err := s.instances.WithTx(tx).AllocateIP(ctx, userID)
		if err != nil {
			return err
		}

		vmid, err := s.instances.WithTx(tx).NextVMID(ctx)
		if err != nil {
			return err
		}

		inst = models.Instance{
			UserID:      userID,
			Name:        req.Name,
			VMID:        &vmid,
			IPAddress:   &lease.Address,
			VCPU:        req.VCPU,
			RAMMB:       req.RAMMB,
			DiskGB:      req.DiskGB,
			OSTemplate:  req.OSTemplate,
			Status:      config.InstanceStatusPending,
			Node:        s.cfg.Node,
			HourlyPrice: s.cfg.HourlyPrice,
		}
		if err := s.instances.WithTx(tx).Create(ctx, &inst); err != nil {
			return err
		}

		payload := dto.TaskPayload{
			InstanceID: inst.ID,
			VMID:       vmid,
			Name:       req.Name,
			VCPU:       req.VCPU,
			RAMMB:      req.RAMMB,
			DiskGB:     req.DiskGB,
			OSTemplate: req.OSTemplate,
			IPAddress:  lease.Address,
			Gateway:    lease.Gateway,
			Node:       s.cfg.Node,
		}
		queued, err := s.enqueue(ctx, tx, config.ActionCreate, payload)
		if err != nil {
			return err
		}
		task = *queued
		return nil
	})
	if err != nil {
		return nil, s.mapAdmissionError(err)
	}

	s.writeAudit(ctx, userID, config.ActionCreate,
		fmt.Sprintf("instance %d (%s) vmid %d", inst.ID, inst.Name, *inst.VMID))

	return &dto.LifecycleResponseDTO{
		Success:    true,
		Message:    "instance creation queued",
		TaskID:     task.ID,
		InstanceID: inst.ID,
	}, nil
}

func (s *Service) Start(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatch(ctx, userID, instanceID, config.ActionStart, false)
}

// Stop queues a graceful shutdown, or a hard stop when force is set. A
// forced stop is additionally allowed from the error status so wedged
// machines can be brought down.
func (s *Service) Stop(ctx context.Context, userID, instanceID uint, force bool) (*dto.LifecycleResponseDTO, error) {
	return s.dispatch(ctx, userID, instanceID, config.ActionStop, force)
}

func (s *Service) Reboot(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatch(ctx, userID, instanceID, config.ActionReboot, false)
}

func (s *Service) Delete(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatch(ctx, userID, instanceID, config.ActionDelete, false)
}

func (s *Service) CreateSnapshot(ctx context.Context, userID, instanceID uint, name string) (*dto.LifecycleResponseDTO, error) {
	if !snapshotNameRE.MatchString(name) {
		return nil, common.Errf(http.StatusBadRequest,
			"snapshot name may only contain letters, digits, underscores and dashes")
	}
	return s.dispatchAux(ctx, userID, instanceID, config.ActionSnapshotCreate, name)
}

func (s *Service) ListSnapshots(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatchAux(ctx, userID, instanceID, config.ActionSnapshotList, "")
}

func (s *Service) Console(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatchAux(ctx, userID, instanceID, config.ActionConsole, "")
}

// RefreshStatus queues a status query against the hypervisor. The panel uses
// it to reconcile a machine whose actual power state may have diverged from
// the recorded one.
func (s *Service) RefreshStatus(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	return s.dispatchAux(ctx, userID, instanceID, config.ActionStatus, "")
}

// dispatch queues a power-state action. The instance goes to pending in the
// same transaction as the enqueue, representing "operation in flight".
func (s *Service) dispatch(ctx context.Context, userID, instanceID uint, action string, force bool) (*dto.LifecycleResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	inst, err := s.ownedInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(inst, action, force); err != nil {
		return nil, err
	}

	payload := dto.TaskPayload{
		InstanceID: inst.ID,
		VMID:       *inst.VMID,
		Node:       inst.Node,
		Force:      force,
	}
	if action == config.ActionDelete && inst.IPAddress != nil {
		payload.IPAddress = *inst.IPAddress
	}

	var task models.Task
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.instances.WithTx(tx).UpdateStatus(ctx, inst.ID, config.InstanceStatusPending); err != nil {
			return err
		}
		queued, err := s.enqueue(ctx, tx, action, payload)
		if err != nil {
			return err
		}
		task = *queued
		return nil
	})
	if err != nil {
		return nil, s.mapAdmissionError(err)
	}

	s.writeAudit(ctx, userID, action, fmt.Sprintf("instance %d vmid %d", inst.ID, *inst.VMID))

	return &dto.LifecycleResponseDTO{
		Success:    true,
		Message:    fmt.Sprintf("%s queued", action),
		TaskID:     task.ID,
		InstanceID: inst.ID,
	}, nil
}

// dispatchAux queues a read-only or snapshot action. The instance status is
// left alone: these tasks do not represent a power-state transition.
func (s *Service) dispatchAux(ctx context.Context, userID, instanceID uint, action, snapshotName string) (*dto.LifecycleResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	inst, err := s.ownedInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(inst, action, false); err != nil {
		return nil, err
	}

	payload := dto.TaskPayload{
		InstanceID:   inst.ID,
		VMID:         *inst.VMID,
		Node:         inst.Node,
		SnapshotName: snapshotName,
	}

	task, err := s.enqueue(ctx, nil, action, payload)
	if err != nil {
		return nil, s.mapAdmissionError(err)
	}

	s.writeAudit(ctx, userID, action, fmt.Sprintf("instance %d vmid %d", inst.ID, *inst.VMID))

	return &dto.LifecycleResponseDTO{
		Success:    true,
		Message:    fmt.Sprintf("%s queued", action),
		TaskID:     task.ID,
		InstanceID: inst.ID,
	}, nil
}

func (s *Service) GetInstance(ctx context.Context, userID, instanceID uint) (*dto.InstanceResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	inst, err := s.ownedInstance(ctx, userID, instanceID)
	if err != nil {
		return nil, err
	}
	resp := toInstanceDTO(inst)
	return &resp, nil
}

func (s *Service) ListInstances(ctx context.Context, userID uint) ([]dto.InstanceResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	instances, err := s.instances.ListByOwner(ctx, userID)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to list instances")
	}

	dtos := make([]dto.InstanceResponseDTO, len(instances))
	for i := range instances {
		dtos[i] = toInstanceDTO(&instances[i])
	}
	return dtos, nil
}

// GetTask returns the task record the dispatch endpoints hand out, so
// callers can poll until it reaches a terminal status.
func (s *Service) GetTask(ctx context.Context, id uint) (*dto.TaskResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("task")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get task")
	}

	return &dto.TaskResponseDTO{
		ID:         task.ID,
		Action:     task.Action,
		Payload:    json.RawMessage(task.Payload),
		Status:     task.Status,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Result:     json.RawMessage(task.Result),
		Error:      task.Error,
		CreatedAt:  task.CreatedAt,
		StartedAt:  task.StartedAt,
		FinishedAt: task.FinishedAt,
	}, nil
}

func (s *Service) ownedInstance(ctx context.Context, userID, instanceID uint) (*models.Instance, error) {
	inst, err := s.instances.GetOwned(ctx, instanceID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("instance")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get instance")
	}
	return inst, nil
}

func checkTransition(inst *models.Instance, action string, force bool) error {
	if inst.Status == config.InstanceStatusDeleted {
		return common.Conflictf("instance is deleted")
	}
	if inst.VMID == nil {
		return common.Conflictf("instance has no hypervisor id yet")
	}

	allowed := allowedFrom[action]
	if action == config.ActionStop && force {
		allowed = []string{config.InstanceStatusRunning, config.InstanceStatusError}
	}

	if !slices.Contains(allowed, inst.Status) {
		if inst.Status == config.InstanceStatusPending {
			return common.Conflictf("an operation is already in progress")
		}
		return common.Conflictf("cannot %s an instance in status %q", action, inst.Status)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, tx *gorm.DB, action string, payload dto.TaskPayload) (*models.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}

	task := &models.Task{
		Action:     action,
		Payload:    datatypes.JSON(b),
		Status:     config.TaskStatusPending,
		MaxRetries: s.cfg.TaskMaxRetries,
	}

	repo := s.tasks
	if tx != nil {
		repo = s.tasks.WithTx(tx)
	}
	if err := repo.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// writeAudit is best-effort: a failed audit write is logged, never surfaced.
func (s *Service) writeAudit(ctx context.Context, userID uint, action, detail string) {
	if err := s.audit.Write(ctx, userID, action, detail); err != nil {
		log.Printf("[audit][WARN] %v", err)
	}
}

func (s *Service) mapAdmissionError(err error) error {
	var apiErr common.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, postgres.ErrInsufficientBalance):
		return common.Errf(http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, postgres.ErrNoFreeIP):
		return common.Conflictf("no IP addresses available")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	default:
		log.Printf("[dispatch][ERROR] %v", err)
		return common.Errf(http.StatusInternalServerError, "failed to queue operation")
	}
}

func toInstanceDTO(inst *models.Instance) dto.InstanceResponseDTO {
	return dto.InstanceResponseDTO{
		ID:          inst.ID,
		Name:        inst.Name,
		VMID:        inst.VMID,
		IPAddress:   inst.IPAddress,
		VCPU:        inst.VCPU,
		RAMMB:       inst.RAMMB,
		DiskGB:      inst.DiskGB,
		OSTemplate:  inst.OSTemplate,
		Status:      inst.Status,
		Node:        inst.Node,
		HourlyPrice: inst.HourlyPrice,
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}
}
