package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/middleware"
	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *appErrors.Error   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

func perform(h gin.HandlerFunc, method, target string, body io.Reader, params gin.Params, claims *models.JWTClaims) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, body)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	h(c)
	c.Writer.WriteHeaderNow()
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// stubTeacherRepo backs the directory service with an in-memory roster.
type stubTeacherRepo struct {
	teachers        map[string]*models.Teacher
	nextID          int
	lastRecentLimit int
}

func newStubTeacherRepo(seed ...*models.Teacher) *stubTeacherRepo {
	repo := &stubTeacherRepo{teachers: make(map[string]*models.Teacher)}
	for _, t := range seed {
		repo.teachers[t.ID] = t
	}
	return repo
}

func (s *stubTeacherRepo) List(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, t := range s.teachers {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (s *stubTeacherRepo) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	t, ok := s.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (s *stubTeacherRepo) FindByCode(_ context.Context, code string) (*models.Teacher, error) {
	for _, t := range s.teachers {
		if t.Code == code {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubTeacherRepo) ExistsByCode(_ context.Context, code, excludeID string) (bool, error) {
	for _, t := range s.teachers {
		if t.Code == code && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubTeacherRepo) ExistsByIDCard(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubTeacherRepo) ExistsByPhone(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubTeacherRepo) Create(_ context.Context, teacher *models.Teacher) error {
	s.nextID++
	teacher.ID = fmt.Sprintf("t%d", s.nextID)
	s.teachers[teacher.ID] = teacher
	return nil
}

func (s *stubTeacherRepo) Update(_ context.Context, teacher *models.Teacher) error {
	s.teachers[teacher.ID] = teacher
	return nil
}

func (s *stubTeacherRepo) Delete(_ context.Context, id string) error {
	delete(s.teachers, id)
	return nil
}

func (s *stubTeacherRepo) UpdateStatus(_ context.Context, id string, status models.TeacherStatus) error {
	t, ok := s.teachers[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	return nil
}

func (s *stubTeacherRepo) InsertStatusChange(context.Context, *models.TeacherStatusChange) error {
	return nil
}

func (s *stubTeacherRepo) Statistics(context.Context) (*models.TeacherStatistics, error) {
	return &models.TeacherStatistics{Total: len(s.teachers)}, nil
}

func (s *stubTeacherRepo) Recent(_ context.Context, limit int) ([]models.Teacher, error) {
	s.lastRecentLimit = limit
	var out []models.Teacher
	for _, t := range s.teachers {
		out = append(out, *t)
	}
	return out, nil
}

// stubEvaluationRepo backs the aggregation service with in-memory events.
type stubEvaluationRepo struct {
	evaluations []models.Evaluation
}

func (s *stubEvaluationRepo) Create(_ context.Context, evaluation *models.Evaluation) error {
	evaluation.ID = fmt.Sprintf("e%d", len(s.evaluations)+1)
	s.evaluations = append(s.evaluations, *evaluation)
	return nil
}

func (s *stubEvaluationRepo) List(_ context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error) {
	var out []models.Evaluation
	for _, e := range s.evaluations {
		if filter.TeacherID != "" && e.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubEvaluationRepo) HasSubmission(_ context.Context, teacherID, evaluatorID, evaluationType string) (bool, error) {
	for _, e := range s.evaluations {
		if e.TeacherID == teacherID && e.EvaluatorID == evaluatorID && e.EvaluationType == evaluationType {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubEvaluationRepo) AverageOverall(_ context.Context, teacherID string) (float64, error) {
	sum, count := 0.0, 0
	for _, e := range s.evaluations {
		if e.TeacherID == teacherID {
			sum += e.OverallScore
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func (s *stubEvaluationRepo) AverageByEvaluatorType(context.Context, string, models.EvaluatorType) (float64, error) {
	return 0, nil
}

func (s *stubEvaluationRepo) CountsByEvaluatorType(_ context.Context, teacherID string) (map[string]int, int, error) {
	counts := make(map[string]int)
	total := 0
	for _, e := range s.evaluations {
		if e.TeacherID == teacherID {
			counts[string(e.EvaluatorType)]++
			total++
		}
	}
	return counts, total, nil
}

func (s *stubEvaluationRepo) TopRated(context.Context, int) ([]models.TeacherAverageScore, error) {
	return []models.TeacherAverageScore{{TeacherID: "t1", AverageScore: 4.8}}, nil
}

// stubPerformanceRepo backs the calculator service.
type stubPerformanceRepo struct {
	records          map[string]*models.Performance
	nextID           int
	lastRankingLimit int
}

func newStubPerformanceRepo() *stubPerformanceRepo {
	return &stubPerformanceRepo{records: make(map[string]*models.Performance)}
}

func (s *stubPerformanceRepo) FindByID(_ context.Context, id string) (*models.Performance, error) {
	p, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *stubPerformanceRepo) FindByTeacherAndPeriod(_ context.Context, teacherID string, period time.Time) (*models.Performance, error) {
	for _, p := range s.records {
		if p.TeacherID == teacherID && p.Period.Equal(period) {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubPerformanceRepo) Insert(_ context.Context, perf *models.Performance) error {
	s.nextID++
	perf.ID = fmt.Sprintf("p%d", s.nextID)
	s.records[perf.ID] = perf
	return nil
}

func (s *stubPerformanceRepo) Update(_ context.Context, perf *models.Performance) error {
	s.records[perf.ID] = perf
	return nil
}

func (s *stubPerformanceRepo) HistoryByTeacher(_ context.Context, teacherID string) ([]models.Performance, error) {
	var out []models.Performance
	for _, p := range s.records {
		if p.TeacherID == teacherID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubPerformanceRepo) Ranking(_ context.Context, limit int) ([]models.PerformanceRank, error) {
	s.lastRankingLimit = limit
	return nil, nil
}

func (s *stubPerformanceRepo) RankingByPeriod(_ context.Context, _ time.Time, limit int) ([]models.PerformanceRank, error) {
	s.lastRankingLimit = limit
	return nil, nil
}

func (s *stubPerformanceRepo) Statistics(context.Context) (*models.PerformanceStatistics, error) {
	return &models.PerformanceStatistics{TotalCount: len(s.records)}, nil
}

func (s *stubPerformanceRepo) TrendByTeacher(ctx context.Context, teacherID string, _ int) ([]models.Performance, error) {
	return s.HistoryByTeacher(ctx, teacherID)
}
