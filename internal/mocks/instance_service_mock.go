package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vmforge/vmforge/internal/dto"
)

type InstanceServiceMock struct {
	mock.Mock
}

func (m *InstanceServiceMock) CreateInstance(ctx context.Context, userID uint, req *dto.CreateInstanceDTO) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) Start(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) Stop(ctx context.Context, userID, instanceID uint, force bool) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) Reboot(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) Delete(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) CreateSnapshot(ctx context.Context, userID, instanceID uint, name string) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) ListSnapshots(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) Console(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) RefreshStatus(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.LifecycleResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) GetInstance(ctx context.Context, userID, instanceID uint) (*dto.InstanceResponseDTO, error) {
	args := m.Called(ctx, userID, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.InstanceResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) ListInstances(ctx context.Context, userID uint) ([]dto.InstanceResponseDTO, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dto.InstanceResponseDTO), args.Error(1)
}

func (m *InstanceServiceMock) GetTask(ctx context.Context, id uint) (*dto.TaskResponseDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.TaskResponseDTO), args.Error(1)
}
