package instance

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/vmforge/vmforge/internal/dto"
)

// ServiceInterface is the dispatcher boundary: admission checks, provisional
// state writes and task enqueueing. Execution happens elsewhere, in the
// worker process.
type ServiceInterface interface {
	CreateInstance(ctx context.Context, userID uint, req *dto.CreateInstanceDTO) (*dto.LifecycleResponseDTO, error)
	Start(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	Stop(ctx context.Context, userID, instanceID uint, force bool) (*dto.LifecycleResponseDTO, error)
	Reboot(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	Delete(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	CreateSnapshot(ctx context.Context, userID, instanceID uint, name string) (*dto.LifecycleResponseDTO, error)
	ListSnapshots(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	Console(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	RefreshStatus(ctx context.Context, userID, instanceID uint) (*dto.LifecycleResponseDTO, error)
	GetInstance(ctx context.Context, userID, instanceID uint) (*dto.InstanceResponseDTO, error)
	ListInstances(ctx context.Context, userID uint) ([]dto.InstanceResponseDTO, error)
	GetTask(ctx context.Context, id uint) (*dto.TaskResponseDTO, error)
}

// HandlerInterface defines the HTTP surface consumed by the router.
type HandlerInterface interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Start(c *gin.Context)
	Stop(c *gin.Context)
	Reboot(c *gin.Context)
	Delete(c *gin.Context)
	CreateSnapshot(c *gin.Context)
	ListSnapshots(c *gin.Context)
	Console(c *gin.Context)
	RefreshStatus(c *gin.Context)
	GetTask(c *gin.Context)
}
