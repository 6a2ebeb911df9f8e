package staffaccess

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/handler"
	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/service/staffaccess"
)

type Handler struct {
	service *staffaccess.Service
}

func NewHandler(service *staffaccess.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin *gin.RouterGroup) {
	r.POST("/staff-access/request", h.Request)
	r.GET("/staff-access/status", h.Status)

	admin.GET("/staff-access/requests", h.ListRequests)
	admin.POST("/staff-access/approve/:id", h.Approve)
	admin.POST("/staff-access/reject/:id", h.Reject)
}

func (h *Handler) Request(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req model.RequestAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	grant, err := h.service.Request(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(grant))
}

func (h *Handler) Status(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	status, err := h.service.Status(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}

func (h *Handler) ListRequests(c *gin.Context) {
	grants, err := h.service.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(grants))
}

func (h *Handler) Approve(c *gin.Context) {
	h.decide(c, true)
}

func (h *Handler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *Handler) decide(c *gin.Context, approve bool) {
	staffID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid staff ID"))
		return
	}

	actor := middleware.ActorFromContext(c)
	grant, err := h.service.Decide(c.Request.Context(), actor, staffID, approve)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(grant))
}
