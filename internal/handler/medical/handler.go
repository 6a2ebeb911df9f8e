package medical

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medqr/emergency-api/internal/handler"
	"github.com/medqr/emergency-api/internal/middleware"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/service/medical"
	"github.com/medqr/emergency-api/internal/service/staffaccess"
	"github.com/medqr/emergency-api/pkg/qr"
)

type Handler struct {
	service  *medical.Service
	staffSvc *staffaccess.Service
}

func NewHandler(service *medical.Service, staffSvc *staffaccess.Service) *Handler {
	return &Handler{service: service, staffSvc: staffSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	medical := r.Group("/medical")
	{
		medical.GET("/patient/me", h.GetOwnRecord)
		medical.GET("/patient/:id", h.GetPatientRecord)
		medical.GET("/access-log", h.GetAccessLog)
		medical.POST("", h.UpsertRecord)
		medical.DELETE("", h.DeleteRecord)
		medical.POST("/scan", h.Scan)
		medical.GET("/staff-status", h.StaffStatus)
	}
}

func (h *Handler) GetOwnRecord(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	record, err := h.service.GetOwnRecord(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(record))
}

func (h *Handler) UpsertRecord(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req model.UpsertRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	record, err := h.service.UpsertRecord(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(record))
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	if err := h.service.DeleteOwnRecord(c.Request.Context(), actor); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": true}))
}

// ScanRequest accepts either a bare patient ID or the raw QR payload.
type ScanRequest struct {
	PatientID string `json:"patientId"`
	Data      string `json:"data"`
}

func (h *Handler) Scan(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	raw := req.PatientID
	if raw == "" {
		raw = req.Data
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("patient ID is required"))
		return
	}

	patientID, err := qr.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid QR payload"))
		return
	}

	projection, err := h.service.Scan(c.Request.Context(), actor, patientID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(projection))
}

// GetPatientRecord serves staff fetching a record by URL id; it is the
// scan path with a different spelling, and is audited the same way.
func (h *Handler) GetPatientRecord(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}

	projection, err := h.service.Scan(c.Request.Context(), actor, patientID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(projection))
}

func (h *Handler) GetAccessLog(c *gin.Context) {
	actor := middleware.ActorFromContext(c)

	entries, err := h.service.AccessLog(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) StaffStatus(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	status, err := h.staffSvc.Status(c.Request.Context(), actor)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}
