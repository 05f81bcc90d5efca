package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/middleware"
	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/service"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
	"github.com/noah-isme/office-appointment-api/pkg/response"
)

type appointmentService interface {
	Create(ctx context.Context, req dto.CreateAppointmentRequest, actor *models.JWTClaims) (*models.Appointment, error)
	Update(ctx context.Context, id int64, req dto.UpdateAppointmentRequest) (*models.Appointment, error)
	Delete(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.Appointment, error)
	List(ctx context.Context, req dto.AppointmentListRequest) ([]models.Appointment, *models.Pagination, error)
}

type agendaExporter interface {
	Export(ctx context.Context, req dto.AppointmentExportRequest) (*service.ExportResult, error)
}

// AppointmentHandler exposes appointment booking endpoints.
type AppointmentHandler struct {
	service  appointmentService
	exporter agendaExporter
}

// NewAppointmentHandler builds a new handler.
func NewAppointmentHandler(service appointmentService, exporter agendaExporter) *AppointmentHandler {
	return &AppointmentHandler{service: service, exporter: exporter}
}

// Create godoc
// @Summary Book an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppointmentRequest true "Appointment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appointment payload"))
		return
	}
	appointment, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewAppointmentResponse(*appointment))
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param date query string false "YYYY-MM-DD"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Param unitId query int false "Unit"
// @Param isDeleted query bool false "List soft-deleted appointments"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	req, err := parseListRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAppointmentResponses(items), pagination, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export the appointment agenda
// @Tags Appointments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param date query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Router /appointments/export [get]
func (h *AppointmentHandler) Export(c *gin.Context) {
	filter, err := parseListRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), dto.AppointmentExportRequest{
		AppointmentListRequest: filter,
		Format:                 c.Query("format"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

// Get godoc
// @Summary Get an appointment
// @Tags Appointments
// @Produce json
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	appointment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAppointmentResponse(*appointment), nil)
}

// Update godoc
// @Summary Partially update an appointment
// @Description Absent fields are unchanged; null clears optional fields.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path int true "Appointment ID"
// @Param payload body dto.UpdateAppointmentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [patch]
func (h *AppointmentHandler) Update(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appointment payload"))
		return
	}
	appointment, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAppointmentResponse(*appointment), nil)
}

// Delete godoc
// @Summary Soft delete an appointment
// @Tags Appointments
// @Param id path int true "Appointment ID"
// @Success 204
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Delete(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Purge godoc
// @Summary Permanently delete an appointment
// @Tags Appointments
// @Param id path int true "Appointment ID"
// @Success 204
// @Router /appointments/{id}/purge [delete]
func (h *AppointmentHandler) Purge(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.HardDelete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseListRequest(c *gin.Context) (dto.AppointmentListRequest, error) {
	req := dto.AppointmentListRequest{
		Status:   strings.TrimSpace(c.Query("status")),
		Date:     strings.TrimSpace(c.Query("date")),
		From:     strings.TrimSpace(c.Query("from")),
		To:       strings.TrimSpace(c.Query("to")),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "limit", 20),
	}
	if raw := c.Query("isDeleted"); raw != "" {
		deleted, err := strconv.ParseBool(raw)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "isDeleted must be a boolean")
		}
		req.IsDeleted = deleted
	}
	var err error
	if req.UnitID, err = parseOptionalID(c, "unitId"); err != nil {
		return req, err
	}
	if req.UserID, err = parseOptionalID(c, "userId"); err != nil {
		return req, err
	}
	return req, nil
}
