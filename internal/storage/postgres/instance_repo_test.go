package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/models"
)

func testInstance(userID uint, vmid int) *models.Instance {
	return &models.Instance{
		UserID:     userID,
		Name:       "web-1",
		VMID:       &vmid,
		VCPU:       2,
		RAMMB:      2048,
		DiskGB:     20,
		OSTemplate: "debian-12",
		Status:     config.InstanceStatusPending,
		Node:       "pve",
	}
}

func TestInstanceRepository_GetOwned(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	inst := testInstance(1, 101)
	require.NoError(t, repo.Create(ctx, inst))

	got, err := repo.GetOwned(ctx, inst.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "web-1", got.Name)

	// A different owner sees the same id as missing.
	_, err = repo.GetOwned(ctx, inst.ID, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance not found")
}

func TestInstanceRepository_UpdateStatus(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	inst := testInstance(1, 101)
	require.NoError(t, repo.Create(ctx, inst))

	require.NoError(t, repo.UpdateStatus(ctx, inst.ID, config.InstanceStatusRunning))

	got, err := repo.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, config.InstanceStatusRunning, got.Status)
}

func TestInstanceRepository_NextVMID(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	vmid, err := repo.NextVMID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 101, vmid)

	require.NoError(t, repo.Create(ctx, testInstance(1, 150)))

	// Deleted instances still pin their vmid: ids are never reused.
	deleted := testInstance(1, 200)
	deleted.Status = config.InstanceStatusDeleted
	require.NoError(t, repo.Create(ctx, deleted))

	vmid, err = repo.NextVMID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 201, vmid)
}

func TestInstanceRepository_AllocateIP(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	seedLease(t, db, "192.168.100.10")
	seedLease(t, db, "192.168.100.11")

	lease, err := repo.AllocateIP(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "192.168.100.10", lease.Address)
	assert.True(t, lease.Allocated)
	require.NotNil(t, lease.UserID)
	assert.EqualValues(t, 1, *lease.UserID)

	lease, err = repo.AllocateIP(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "192.168.100.11", lease.Address)

	// Pool exhausted.
	_, err = repo.AllocateIP(ctx, 3)
	assert.ErrorIs(t, err, ErrNoFreeIP)
}

func TestInstanceRepository_ReleaseIP(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	seedLease(t, db, "192.168.100.10")

	_, err := repo.AllocateIP(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, repo.ReleaseIP(ctx, "192.168.100.10"))

	var lease models.IPLease
	require.NoError(t, db.First(&lease, "address = ?", "192.168.100.10").Error)
	assert.False(t, lease.Allocated)
	assert.Nil(t, lease.UserID)

	// The released address is allocatable again.
	got, err := repo.AllocateIP(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "192.168.100.10", got.Address)
}

func TestInstanceRepository_ListByOwner(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	a := testInstance(1, 101)
	b := testInstance(1, 102)
	c := testInstance(2, 103)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, c))

	instances, err := repo.ListByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}
