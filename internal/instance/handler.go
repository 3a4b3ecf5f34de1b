package instance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vmforge/vmforge/common"
	"github.com/vmforge/vmforge/internal/dto"
	"github.com/vmforge/vmforge/middleware"
)

type Handler struct {
	service ServiceInterface
}

func NewHandler(s ServiceInterface) *Handler {
	return &Handler{service: s}
}

var _ HandlerInterface = (*Handler)(nil)

// Create handles POST /instances. It binds and validates the request body,
// runs admission through the service and returns 202 with the task id to
// poll.
func (h *Handler) Create(c *gin.Context) {
	var req dto.CreateInstanceDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.CreateInstance(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) List(c *gin.Context) {
	instances, err := h.service.ListInstances(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetInstance(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Start(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.Start(c.Request.Context(), userID, id)
	})
}

// Stop handles POST /instances/:id/stop. A force=true body turns the
// graceful shutdown into a hard stop.
func (h *Handler) Stop(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body dto.StopInstanceDTO
	if c.Request.ContentLength > 0 && !middleware.Bind(c, &body) {
		return
	}

	resp, err := h.service.Stop(c.Request.Context(), middleware.UserID(c), id, body.Force)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) Reboot(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.Reboot(c.Request.Context(), userID, id)
	})
}

func (h *Handler) Delete(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.Delete(c.Request.Context(), userID, id)
	})
}

func (h *Handler) CreateSnapshot(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body dto.CreateSnapshotDTO
	if !middleware.Bind(c, &body) {
		return
	}

	resp, err := h.service.CreateSnapshot(c.Request.Context(), middleware.UserID(c), id, body.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) ListSnapshots(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.ListSnapshots(c.Request.Context(), userID, id)
	})
}

func (h *Handler) Console(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.Console(c.Request.Context(), userID, id)
	})
}

func (h *Handler) RefreshStatus(c *gin.Context) {
	h.lifecycle(c, func(c *gin.Context, userID, id uint) (*dto.LifecycleResponseDTO, error) {
		return h.service.RefreshStatus(c.Request.Context(), userID, id)
	})
}

// GetTask handles GET /tasks/:id, the polling endpoint handed out by every
// dispatch response.
func (h *Handler) GetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetTask(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) lifecycle(c *gin.Context, fn func(*gin.Context, uint, uint) (*dto.LifecycleResponseDTO, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := fn(c, middleware.UserID(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return 0, false
	}
	return uint(id), true
}
