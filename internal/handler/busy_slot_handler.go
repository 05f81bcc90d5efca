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

type busySlotService interface {
	BlockSlot(ctx context.Context, req dto.BlockSlotRequest) (*models.BusyTimeSlot, error)
	UnblockSlot(ctx context.Context, id int64) error
	CheckSlot(ctx context.Context, req dto.SlotCheckRequest) (*dto.SlotStatus, error)
	ListSlotsForDate(ctx context.Context, rawDate string) ([]models.BusyTimeSlot, error)
	ListSlots(ctx context.Context, rawFrom, rawTo string) ([]models.BusyTimeSlot, error)
}

// BusySlotHandler exposes busy time slot endpoints.
type BusySlotHandler struct {
	service busySlotService
}

// NewBusySlotHandler builds a new handler.
func NewBusySlotHandler(service busySlotService) *BusySlotHandler {
	return &BusySlotHandler{service: service}
}

// List godoc
// @Summary List busy time slots
// @Tags Busy Slots
// @Produce json
// @Param date query string false "Single date, YYYY-MM-DD"
// @Param from query string false "Range start, YYYY-MM-DD"
// @Param to query string false "Range end, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /busy-slots [get]
func (h *BusySlotHandler) List(c *gin.Context) {
	var (
		slots []models.BusyTimeSlot
		err   error
	)
	if date := c.Query("date"); date != "" {
		slots, err = h.service.ListSlotsForDate(c.Request.Context(), date)
	} else {
		slots, err = h.service.ListSlots(c.Request.Context(), c.Query("from"), c.Query("to"))
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewBusySlotResponses(slots), nil, middleware.ExtractMeta(c))
}

// Check godoc
// @Summary Check whether a time range is blocked
// @Tags Busy Slots
// @Produce json
// @Param date query string true "YYYY-MM-DD"
// @Param start query string true "HH:MM"
// @Param end query string true "HH:MM"
// @Success 200 {object} response.Envelope
// @Router /busy-slots/check [get]
func (h *BusySlotHandler) Check(c *gin.Context) {
	var req dto.SlotCheckRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot query"))
		return
	}
	status, err := h.service.CheckSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Block godoc
// @Summary Declare a busy time slot
// @Tags Busy Slots
// @Accept json
// @Produce json
// @Param payload body dto.BlockSlotRequest true "Busy slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /busy-slots [post]
func (h *BusySlotHandler) Block(c *gin.Context) {
	var req dto.BlockSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid busy slot payload"))
		return
	}
	slot, err := h.service.BlockSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewBusySlotResponse(*slot))
}

// Unblock godoc
// @Summary Remove a busy time slot
// @Tags Busy Slots
// @Param id path int true "Slot ID"
// @Success 204
// @Router /busy-slots/{id} [delete]
func (h *BusySlotHandler) Unblock(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.UnblockSlot(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
