package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-hub-api/internal/service"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
	"github.com/noah-isme/teacher-hub-api/pkg/response"
)

// PerformanceHandler wires performance endpoints to the calculator service.
type PerformanceHandler struct {
	performances *service.PerformanceService
}

// NewPerformanceHandler constructs a PerformanceHandler.
func NewPerformanceHandler(performances *service.PerformanceService) *PerformanceHandler {
	return &PerformanceHandler{performances: performances}
}

// Calculate godoc
// @Summary Calculate a teacher's performance for a period
// @Tags Performance
// @Produce json
// @Param id path string true "Teacher ID"
// @Param period query string false "Period (YYYY-MM), defaults to current month"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/performance/calculate [post]
func (h *PerformanceHandler) Calculate(c *gin.Context) {
	period, ok := parsePeriodParam(c)
	if !ok {
		return
	}
	perf, err := h.performances.Calculate(c.Request.Context(), c.Param("id"), period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perf, nil)
}

// UpdateMetrics godoc
// @Summary Update metric inputs of a performance record
// @Tags Performance
// @Accept json
// @Produce json
// @Param id path string true "Performance record ID"
// @Param payload body service.UpdateMetricsRequest true "Metrics payload"
// @Success 200 {object} response.Envelope
// @Router /performance/{id}/metrics [put]
func (h *PerformanceHandler) UpdateMetrics(c *gin.Context) {
	var req service.UpdateMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid metrics payload"))
		return
	}
	perf, err := h.performances.UpdateMetrics(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, perf, nil)
}

// History godoc
// @Summary Performance history of a teacher
// @Tags Performance
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/performance [get]
func (h *PerformanceHandler) History(c *gin.Context) {
	history, err := h.performances.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Report godoc
// @Summary Performance report for a teacher
// @Tags Performance
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/performance/report [get]
func (h *PerformanceHandler) Report(c *gin.Context) {
	report, err := h.performances.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

type compareRequest struct {
	TeacherIDs []string `json:"teacher_ids" binding:"required,min=1"`
	Period     string   `json:"period" binding:"required"`
}

// Compare godoc
// @Summary Compare teachers within one period
// @Tags Performance
// @Accept json
// @Produce json
// @Param payload body handler.compareRequest true "Comparison payload"
// @Success 200 {object} response.Envelope
// @Router /performance/compare [post]
func (h *PerformanceHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comparison payload"))
		return
	}
	period, err := time.Parse("2006-01", req.Period)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid period, expected YYYY-MM"))
		return
	}
	entries, err := h.performances.Compare(c.Request.Context(), req.TeacherIDs, period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Ranking godoc
// @Summary Performance ranking
// @Tags Performance
// @Produce json
// @Param period query string false "Restrict to one period (YYYY-MM)"
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Router /performance/ranking [get]
func (h *PerformanceHandler) Ranking(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if raw := c.Query("period"); raw != "" {
		period, err := time.Parse("2006-01", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid period, expected YYYY-MM"))
			return
		}
		ranks, err := h.performances.RankingByPeriod(c.Request.Context(), period, limit)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, ranks, nil)
		return
	}
	ranks, err := h.performances.Ranking(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranks, nil)
}

// Statistics godoc
// @Summary Performance statistics
// @Tags Performance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /performance/statistics [get]
func (h *PerformanceHandler) Statistics(c *gin.Context) {
	stats, err := h.performances.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func parsePeriodParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("period")
	if raw == "" {
		return time.Now().UTC(), true
	}
	period, err := time.Parse("2006-01", raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid period, expected YYYY-MM"))
		return time.Time{}, false
	}
	return period, true
}
