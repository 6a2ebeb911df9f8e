package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/handler"
	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/service/auth"
)

type Handler struct {
	service *auth.Service
}

func NewHandler(service *auth.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires the public auth endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
}

// RegisterProtectedRoutes wires endpoints that require a session.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup, admin *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)

	admin.GET("/auth/unverified-staff", h.ListUnverifiedStaff)
	admin.GET("/auth/all-staff", h.ListAllStaff)
	admin.POST("/auth/verify-staff/:id", h.VerifyStaff)
	admin.POST("/auth/revoke-staff/:id", h.RevokeStaff)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(resp))
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
}

func (h *Handler) Me(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), actor.ID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(user))
}

func (h *Handler) ListUnverifiedStaff(c *gin.Context) {
	staff, err := h.service.ListStaff(c.Request.Context(), true)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(staff))
}

func (h *Handler) ListAllStaff(c *gin.Context) {
	staff, err := h.service.ListStaff(c.Request.Context(), false)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(staff))
}

func (h *Handler) VerifyStaff(c *gin.Context) {
	h.setVerification(c, true)
}

func (h *Handler) RevokeStaff(c *gin.Context) {
	h.setVerification(c, false)
}

func (h *Handler) setVerification(c *gin.Context, verified bool) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	actor := middleware.ActorFromContext(c)
	user, err := h.service.SetStaffVerification(c.Request.Context(), actor, targetID, verified)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(user))
}
