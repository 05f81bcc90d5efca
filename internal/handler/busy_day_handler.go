package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/middleware"
	"github.com/noah-isme/office-appointment-api/internal/models"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
	"github.com/noah-isme/office-appointment-api/pkg/response"
)

type busyDayService interface {
	BlockDay(ctx context.Context, req dto.BlockDayRequest) (*dto.BlockDayResult, error)
	UnblockDay(ctx context.Context, rawDate string) (*models.BusyDay, error)
	CheckDay(ctx context.Context, rawDate string) (*dto.BusyDayStatus, error)
	ListBusyDays(ctx context.Context, rawFrom, rawTo string) ([]models.BusyDay, error)
}

// BusyDayHandler exposes busy-day endpoints.
type BusyDayHandler struct {
	service busyDayService
}

// NewBusyDayHandler builds a new handler.
func NewBusyDayHandler(service busyDayService) *BusyDayHandler {
	return &BusyDayHandler{service: service}
}

// List godoc
// @Summary List busy days
// @Tags Busy Days
// @Produce json
// @Param from query string false "YYYY-MM-DD, defaults to today"
// @Param to query string false "YYYY-MM-DD, defaults to from + 30 days"
// @Success 200 {object} response.Envelope
// @Router /busy-days [get]
func (h *BusyDayHandler) List(c *gin.Context) {
	days, err := h.service.ListBusyDays(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.BusyDayResponse, 0, len(days))
	for _, d := range days {
		items = append(items, dto.NewBusyDayResponse(d))
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Check godoc
// @Summary Check whether a date is blocked
// @Tags Busy Days
// @Produce json
// @Param date path string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /busy-days/{date} [get]
func (h *BusyDayHandler) Check(c *gin.Context) {
	status, err := h.service.CheckDay(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Block godoc
// @Summary Declare a busy day
// @Description Pending and approved appointments on the date are moved to the next free date or rejected.
// @Tags Busy Days
// @Accept json
// @Produce json
// @Param payload body dto.BlockDayRequest true "Busy day"
// @Success 201 {object} response.Envelope
// @Router /busy-days [post]
func (h *BusyDayHandler) Block(c *gin.Context) {
	var req dto.BlockDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid busy day payload"))
		return
	}
	result, err := h.service.BlockDay(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Unblock godoc
// @Summary Remove a busy day
// @Tags Busy Days
// @Param date path string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Success 204
// @Router /busy-days/{date} [delete]
func (h *BusyDayHandler) Unblock(c *gin.Context) {
	removed, err := h.service.UnblockDay(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if removed == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBusyDayResponse(*removed), nil)
}
