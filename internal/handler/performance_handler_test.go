package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	"github.com/noah-isme/teacher-hub-api/internal/service"
)

func newPerformanceHandler(repo *stubPerformanceRepo, evaluations *stubEvaluationRepo) *PerformanceHandler {
	teachers := newStubTeacherRepo(seedTeacher())
	svc := service.NewPerformanceService(repo, teachers, evaluations, nil, nil, nil)
	return NewPerformanceHandler(svc)
}

func TestPerformanceHandlerCalculate(t *testing.T) {
	repo := newStubPerformanceRepo()
	evaluations := &stubEvaluationRepo{evaluations: []models.Evaluation{
		{TeacherID: "t1", OverallScore: 4.5},
	}}
	h := newPerformanceHandler(repo, evaluations)

	w := perform(h.Calculate, http.MethodPost, "/teachers/t1/performance/calculate?period=2026-04", nil, gin.Params{{Key: "id", Value: "t1"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var perf models.Performance
	require.NoError(t, json.Unmarshal(env.Data, &perf))
	assert.Equal(t, 86.75, perf.Score)
	assert.Equal(t, models.LevelGood, perf.Level)
	assert.Equal(t, "2026-04-01T00:00:00Z", perf.Period.Format("2006-01-02T15:04:05Z07:00"))
}

func TestPerformanceHandlerCalculateBadPeriod(t *testing.T) {
	h := newPerformanceHandler(newStubPerformanceRepo(), &stubEvaluationRepo{})

	w := perform(h.Calculate, http.MethodPost, "/teachers/t1/performance/calculate?period=april", nil, gin.Params{{Key: "id", Value: "t1"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformanceHandlerUpdateMetrics(t *testing.T) {
	repo := newStubPerformanceRepo()
	repo.records["p1"] = &models.Performance{ID: "p1", TeacherID: "t1", AverageEvaluation: 4.5}
	h := newPerformanceHandler(repo, &stubEvaluationRepo{})

	body := `{"teachingHours":80,"studentSatisfaction":85,"courseCompletionRate":90,"attendanceRate":95,"innovationScore":75}`
	w := perform(h.UpdateMetrics, http.MethodPut, "/performance/p1/metrics", strings.NewReader(body), gin.Params{{Key: "id", Value: "p1"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var perf models.Performance
	require.NoError(t, json.Unmarshal(env.Data, &perf))
	assert.Equal(t, 86.75, perf.Score)
}

func TestPerformanceHandlerUpdateMetricsNotFound(t *testing.T) {
	h := newPerformanceHandler(newStubPerformanceRepo(), &stubEvaluationRepo{})

	body := `{"teachingHours":80}`
	w := perform(h.UpdateMetrics, http.MethodPut, "/performance/missing/metrics", strings.NewReader(body), gin.Params{{Key: "id", Value: "missing"}}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPerformanceHandlerCompare(t *testing.T) {
	repo := newStubPerformanceRepo()
	h := newPerformanceHandler(repo, &stubEvaluationRepo{})

	body := `{"teacher_ids":["t1"],"period":"2026-04"}`
	w := perform(h.Compare, http.MethodPost, "/performance/compare", strings.NewReader(body), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var entries []struct {
		Teacher struct {
			ID string `json:"id"`
		} `json:"teacher"`
		Current *json.RawMessage `json:"current"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].Teacher.ID)
	assert.Nil(t, entries[0].Current)
}

func TestPerformanceHandlerCompareValidation(t *testing.T) {
	h := newPerformanceHandler(newStubPerformanceRepo(), &stubEvaluationRepo{})

	w := perform(h.Compare, http.MethodPost, "/performance/compare", strings.NewReader(`{"teacher_ids":[]}`), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(h.Compare, http.MethodPost, "/performance/compare", strings.NewReader(`{"teacher_ids":["t1"],"period":"04-2026"}`), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformanceHandlerReportNoData(t *testing.T) {
	h := newPerformanceHandler(newStubPerformanceRepo(), &stubEvaluationRepo{})

	w := perform(h.Report, http.MethodGet, "/teachers/t1/performance/report", nil, gin.Params{{Key: "id", Value: "t1"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var report struct {
		RecordCount int    `json:"record_count"`
		Message     string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 0, report.RecordCount)
	assert.Equal(t, "no performance data yet", report.Message)
}

func TestPerformanceHandlerRankingDefaultLimit(t *testing.T) {
	repo := newStubPerformanceRepo()
	h := newPerformanceHandler(repo, &stubEvaluationRepo{})

	w := perform(h.Ranking, http.MethodGet, "/performance/ranking", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, repo.lastRankingLimit)

	w = perform(h.Ranking, http.MethodGet, "/performance/ranking?period=2026-04&limit=3", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, repo.lastRankingLimit)
}
