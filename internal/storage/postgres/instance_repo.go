package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmforge/vmforge/internal/models"
	"gorm.io/gorm"
)

// ErrNoFreeIP signals address-pool exhaustion. Admission treats it as a hard
// failure, never as something to retry.
var ErrNoFreeIP = errors.New("no free IP address in pool")

// baseVMID is the floor for hypervisor VM ids. Proxmox reserves low ids for
// its own use.
const baseVMID = 100

type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func (r *InstanceRepository) WithTx(tx *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: tx}
}

func (r *InstanceRepository) Create(ctx context.Context, inst *models.Instance) error {
	if err := r.db.WithContext(ctx).Create(inst).Error; err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Get(ctx context.Context, id uint) (*models.Instance, error) {
	var inst models.Instance
	if err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instance not found: %w", err)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &inst, nil
}

// GetOwned looks up an instance and enforces ownership in the same query, so
// a foreign instance id is indistinguishable from a missing one.
func (r *InstanceRepository) GetOwned(ctx context.Context, id, userID uint) (*models.Instance, error) {
	var inst models.Instance
	err := r.db.WithContext(ctx).
		First(&inst, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instance not found: %w", err)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &inst, nil
}

func (r *InstanceRepository) ListByOwner(ctx context.Context, userID uint) ([]models.Instance, error) {
	var instances []models.Instance
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// UpdateStatus overwrites the instance status. Called by the worker after a
// task resolves and by the dispatcher when a new operation is queued.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	if err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	return nil
}

// NextVMID returns max(vmid)+1 across all instances, deleted ones included,
// so a hypervisor id is never reused.
func (r *InstanceRepository) NextVMID(ctx context.Context) (int, error) {
	var maxVMID int
	err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Select("COALESCE(MAX(vmid), ?)", baseVMID).
		Scan(&maxVMID).Error
	if err != nil {
		return 0, fmt.Errorf("next vmid: %w", err)
	}
	return maxVMID + 1, nil
}

// AllocateIP claims one unallocated lease for the user with a locking read.
// Returns ErrNoFreeIP when the pool is exhausted.
func (r *InstanceRepository) AllocateIP(ctx context.Context, userID uint) (*models.IPLease, error) {
	var lease models.IPLease

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx, true).
			Where("allocated = ?", false).
			Order("address ASC").
			First(&lease).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&models.IPLease{}).
			Where("address = ?", lease.Address).
			Updates(map[string]any{
				"allocated": true,
				"user_id":   userID,
			}).Error; err != nil {
			return err
		}

		lease.Allocated = true
		lease.UserID = &userID
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoFreeIP
		}
		return nil, fmt.Errorf("allocate ip: %w", err)
	}

	return &lease, nil
}

// ReleaseIP returns an address to the pool. Called by the worker after a
// delete task completes successfully.
func (r *InstanceRepository) ReleaseIP(ctx context.Context, address string) error {
	err := r.db.WithContext(ctx).Model(&models.IPLease{}).
		Where("address = ?", address).
		Updates(map[string]any{
			"allocated": false,
			"user_id":   nil,
		}).Error
	if err != nil {
		return fmt.Errorf("release ip: %w", err)
	}
	return nil
}
