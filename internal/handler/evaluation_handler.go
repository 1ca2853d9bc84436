package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/service"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
	"github.com/noah-isme/teacher-hub-api/pkg/jobs"
	"github.com/noah-isme/teacher-hub-api/pkg/response"
)

// RecalculateJobType labels queued performance recalculations.
const RecalculateJobType = "performance.recalculate"

type recalcEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// EvaluationHandler wires evaluation endpoints to the aggregation service.
type EvaluationHandler struct {
	evaluations *service.EvaluationService
	recalc      recalcEnqueuer
	logger      *zap.Logger
}

// NewEvaluationHandler constructs an EvaluationHandler. The recalc queue is
// optional; without it submissions skip the background recalculation.
func NewEvaluationHandler(evaluations *service.EvaluationService, recalc recalcEnqueuer, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{evaluations: evaluations, recalc: recalc, logger: logger}
}

// Submit godoc
// @Summary Submit an evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.SubmitEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/evaluations [post]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	var req service.SubmitEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evaluation payload"))
		return
	}

	evaluatorID := ""
	if claims := claimsFromContext(c); claims != nil {
		evaluatorID = claims.UserID
	}

	evaluation, err := h.evaluations.Submit(c.Request.Context(), c.Param("id"), evaluatorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.enqueueRecalc(evaluation.TeacherID)
	response.Created(c, evaluation)
}

// ListByTeacher godoc
// @Summary List a teacher's evaluations
// @Tags Evaluations
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/evaluations [get]
func (h *EvaluationHandler) ListByTeacher(c *gin.Context) {
	evaluations, err := h.evaluations.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}

// ListByType godoc
// @Summary List evaluations by evaluation type
// @Tags Evaluations
// @Produce json
// @Param type path string true "Evaluation type"
// @Success 200 {object} response.Envelope
// @Router /evaluations/type/{type} [get]
func (h *EvaluationHandler) ListByType(c *gin.Context) {
	evaluations, err := h.evaluations.ListByType(c.Request.Context(), c.Param("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}

// ListByDateRange godoc
// @Summary List evaluations within a date range
// @Tags Evaluations
// @Produce json
// @Param from query string true "Start date (RFC3339 or YYYY-MM-DD)"
// @Param to query string true "End date (RFC3339 or YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /evaluations [get]
func (h *EvaluationHandler) ListByDateRange(c *gin.Context) {
	from, ok := parseDateParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(c, "to")
	if !ok {
		return
	}
	evaluations, err := h.evaluations.ListByDateRange(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}

// Average godoc
// @Summary Average evaluation score for a teacher
// @Tags Evaluations
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/evaluations/average [get]
func (h *EvaluationHandler) Average(c *gin.Context) {
	average, err := h.evaluations.AverageEvaluation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"average_score": average}, nil)
}

// Statistics godoc
// @Summary Evaluation statistics for a teacher
// @Tags Evaluations
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/evaluations/statistics [get]
func (h *EvaluationHandler) Statistics(c *gin.Context) {
	stats, err := h.evaluations.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Report godoc
// @Summary Evaluation report for a teacher
// @Tags Evaluations
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/evaluations/report [get]
func (h *EvaluationHandler) Report(c *gin.Context) {
	report, err := h.evaluations.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// TopRated godoc
// @Summary Highest rated teachers
// @Tags Evaluations
// @Produce json
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Router /evaluations/top-rated [get]
func (h *EvaluationHandler) TopRated(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	rated, err := h.evaluations.TopRated(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rated, nil)
}

func (h *EvaluationHandler) enqueueRecalc(teacherID string) {
	if h.recalc == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    RecalculateJobType,
		Payload: teacherID,
	}
	if err := h.recalc.Enqueue(job); err != nil {
		h.logger.Warn("failed to enqueue performance recalculation",
			zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

func parseDateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" query parameter is required"))
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" date"))
		return time.Time{}, false
	}
	return t, true
}
