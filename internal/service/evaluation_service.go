package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/dto"
	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

// Item-average thresholds for the strengths/weaknesses analysis, on the
// 0-5 item score scale.
const (
	strengthThreshold = 4.0
	weaknessThreshold = 3.0
	analysisListCap   = 5
)

type evaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error)
	HasSubmission(ctx context.Context, teacherID, evaluatorID, evaluationType string) (bool, error)
	AverageOverall(ctx context.Context, teacherID string) (float64, error)
	AverageByEvaluatorType(ctx context.Context, teacherID string, evaluatorType models.EvaluatorType) (float64, error)
	CountsByEvaluatorType(ctx context.Context, teacherID string) (map[string]int, int, error)
	TopRated(ctx context.Context, limit int) ([]models.TeacherAverageScore, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// SubmitEvaluationRequest is the typed submission payload. Scores are on a
// 0-5 scale per item.
type SubmitEvaluationRequest struct {
	EvaluatorType  models.EvaluatorType `json:"evaluator_type" validate:"required,oneof=student peer management self"`
	EvaluationType string               `json:"evaluation_type" validate:"omitempty,max=100"`
	EvaluationDate *time.Time           `json:"evaluation_date"`
	Items          map[string]string    `json:"items"`
	Scores         map[string]float64   `json:"scores" validate:"omitempty,dive,gte=0,lte=5"`
	Comments       *string              `json:"comments" validate:"omitempty,max=2000"`
	Suggestions    []string             `json:"suggestions" validate:"omitempty,dive,max=500"`
	Anonymous      bool                 `json:"anonymous"`
	Status         string               `json:"status" validate:"omitempty,max=20"`
}

// EvaluationService records evaluation events and derives statistics.
type EvaluationService struct {
	repo      evaluationRepository
	teachers  teacherReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cacheTTL  time.Duration
}

// NewEvaluationService constructs an EvaluationService. Cache may be nil.
func NewEvaluationService(repo evaluationRepository, teachers teacherReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &EvaluationService{
		repo:      repo,
		teachers:  teachers,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cacheTTL:  cacheTTL,
	}
}

// Submit records one evaluation event for a teacher. The (teacher, evaluator,
// evaluation type) triple is checked for a prior submission only when the
// evaluation type is supplied; an empty type skips the dedup guarantee.
func (s *EvaluationService) Submit(ctx context.Context, teacherID, evaluatorID string, req SubmitEvaluationRequest) (*models.Evaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	if strings.TrimSpace(evaluatorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evaluator id required")
	}

	teacher, err := s.resolveTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	evaluationType := strings.TrimSpace(req.EvaluationType)
	if evaluationType != "" {
		exists, err := s.repo.HasSubmission(ctx, teacher.ID, evaluatorID, evaluationType)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior submission")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "evaluation already submitted")
		}
	}

	date := s.now()
	if req.EvaluationDate != nil {
		date = req.EvaluationDate.UTC()
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "submitted"
	}

	evaluation := &models.Evaluation{
		TeacherID:      teacher.ID,
		EvaluatorType:  req.EvaluatorType,
		EvaluatorID:    evaluatorID,
		EvaluationType: evaluationType,
		EvaluationDate: date,
		Items:          models.RatingMap(req.Items),
		Scores:         models.ScoreMap(req.Scores),
		OverallScore:   overallScore(req.Scores),
		Comments:       normalizeOptional(req.Comments),
		Suggestions:    pq.StringArray(req.Suggestions),
		Anonymous:      req.Anonymous,
		Status:         status,
	}

	if err := s.repo.Create(ctx, evaluation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evaluation")
	}

	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("evaluations:%s:*", teacher.ID))
	}
	s.logger.Info("evaluation submitted",
		zap.String("teacher_id", teacher.ID),
		zap.String("evaluator_type", string(req.EvaluatorType)),
		zap.Float64("overall_score", evaluation.OverallScore))
	return evaluation, nil
}

// AverageEvaluation returns the teacher's mean overall score.
func (s *EvaluationService) AverageEvaluation(ctx context.Context, teacherID string) (float64, error) {
	if _, err := s.resolveTeacher(ctx, teacherID); err != nil {
		return 0, err
	}
	avg, err := s.repo.AverageOverall(ctx, teacherID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute average evaluation")
	}
	return avg, nil
}

// Statistics summarises evaluation counts and per-evaluator-type averages.
func (s *EvaluationService) Statistics(ctx context.Context, teacherID string) (*models.EvaluationStatistics, error) {
	if _, err := s.resolveTeacher(ctx, teacherID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("evaluations:%s:statistics", teacherID)
	var cached models.EvaluationStatistics
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	stats, err := s.loadStatistics(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, cacheKey, stats, s.cacheTTL)
	return stats, nil
}

func (s *EvaluationService) loadStatistics(ctx context.Context, teacherID string) (*models.EvaluationStatistics, error) {
	counts, total, err := s.repo.CountsByEvaluatorType(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count evaluations")
	}
	overall, err := s.repo.AverageOverall(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute average evaluation")
	}

	stats := &models.EvaluationStatistics{
		TotalCount:   total,
		CountsByType: counts,
		AverageScore: round1(overall),
	}

	averages := []struct {
		evaluator models.EvaluatorType
		dest      *float64
	}{
		{models.EvaluatorStudent, &stats.StudentAverage},
		{models.EvaluatorPeer, &stats.PeerAverage},
		{models.EvaluatorManagement, &stats.ManagementAverage},
		{models.EvaluatorSelf, &stats.SelfAverage},
	}
	for _, entry := range averages {
		avg, err := s.repo.AverageByEvaluatorType(ctx, teacherID, entry.evaluator)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute evaluator-type average")
		}
		*entry.dest = round1(avg)
	}
	return stats, nil
}

// Report builds the full evaluation report for one teacher: statistics,
// monthly trend, item strengths/weaknesses and collected suggestions.
func (s *EvaluationService) Report(ctx context.Context, teacherID string) (*dto.EvaluationReport, error) {
	teacher, err := s.resolveTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	stats, err := s.loadStatistics(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	evaluations, err := s.repo.List(ctx, models.EvaluationFilter{TeacherID: teacherID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}

	strengths, weaknesses := analyzeItems(evaluations)
	report := &dto.EvaluationReport{
		Teacher: dto.TeacherSummary{
			ID:             teacher.ID,
			FullName:       teacher.FullName,
			Code:           teacher.Code,
			EmploymentType: teacher.EmploymentType,
		},
		Statistics:      *stats,
		Trend:           monthlyTrend(evaluations),
		Strengths:       strengths,
		Weaknesses:      weaknesses,
		Suggestions:     collectSuggestions(evaluations),
		EvaluationCount: len(evaluations),
		GeneratedAt:     s.now(),
	}
	return report, nil
}

// ListByTeacher returns all of a teacher's evaluations, newest first.
func (s *EvaluationService) ListByTeacher(ctx context.Context, teacherID string) ([]models.Evaluation, error) {
	if _, err := s.resolveTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	return s.list(ctx, models.EvaluationFilter{TeacherID: teacherID})
}

// ListByType returns evaluations filtered by evaluation type.
func (s *EvaluationService) ListByType(ctx context.Context, evaluationType string) ([]models.Evaluation, error) {
	return s.list(ctx, models.EvaluationFilter{EvaluationType: evaluationType})
}

// ListByDateRange returns evaluations within the inclusive date window.
func (s *EvaluationService) ListByDateRange(ctx context.Context, from, to time.Time) ([]models.Evaluation, error) {
	return s.list(ctx, models.EvaluationFilter{DateFrom: &from, DateTo: &to})
}

func (s *EvaluationService) list(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error) {
	evaluations, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return evaluations, nil
}

// TopRated lists teachers ranked by average overall score.
func (s *EvaluationService) TopRated(ctx context.Context, limit int) ([]models.TeacherAverageScore, error) {
	rows, err := s.repo.TopRated(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank teachers")
	}
	return rows, nil
}

func (s *EvaluationService) resolveTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// overallScore is the arithmetic mean of the submitted item scores, rounded
// to one decimal place, 0 when no scores were supplied.
func overallScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return round1(sum / float64(len(scores)))
}

// monthlyTrend buckets evaluations by year-month of their evaluation date,
// sorted ascending by month key.
func monthlyTrend(evaluations []models.Evaluation) []dto.TrendBucket {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	for _, e := range evaluations {
		key := e.EvaluationDate.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += e.OverallScore
		b.count++
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	trend := make([]dto.TrendBucket, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		trend = append(trend, dto.TrendBucket{
			Month:        key,
			AverageScore: round1(b.sum / float64(b.count)),
			Count:        b.count,
		})
	}
	return trend
}

// analyzeItems averages every evaluation item across submissions and splits
// them into strengths (>= 4.0, descending) and weaknesses (< 3.0, ascending),
// each capped at five entries. The two lists are disjoint by construction.
func analyzeItems(evaluations []models.Evaluation) (strengths, weaknesses []dto.ItemAverage) {
	type itemAgg struct {
		sum   float64
		count int
	}
	items := make(map[string]*itemAgg)
	for _, e := range evaluations {
		for item, score := range e.Scores {
			agg, ok := items[item]
			if !ok {
				agg = &itemAgg{}
				items[item] = agg
			}
			agg.sum += score
			agg.count++
		}
	}

	for item, agg := range items {
		avg := round1(agg.sum / float64(agg.count))
		switch {
		case avg >= strengthThreshold:
			strengths = append(strengths, dto.ItemAverage{Item: item, AverageScore: avg})
		case avg < weaknessThreshold:
			weaknesses = append(weaknesses, dto.ItemAverage{Item: item, AverageScore: avg})
		}
	}

	sort.Slice(strengths, func(i, j int) bool {
		if strengths[i].AverageScore != strengths[j].AverageScore {
			return strengths[i].AverageScore > strengths[j].AverageScore
		}
		return strengths[i].Item < strengths[j].Item
	})
	sort.Slice(weaknesses, func(i, j int) bool {
		if weaknesses[i].AverageScore != weaknesses[j].AverageScore {
			return weaknesses[i].AverageScore < weaknesses[j].AverageScore
		}
		return weaknesses[i].Item < weaknesses[j].Item
	})

	if len(strengths) > analysisListCap {
		strengths = strengths[:analysisListCap]
	}
	if len(weaknesses) > analysisListCap {
		weaknesses = weaknesses[:analysisListCap]
	}
	return strengths, weaknesses
}

// collectSuggestions dedups free-text suggestions preserving first-seen order.
func collectSuggestions(evaluations []models.Evaluation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range evaluations {
		for _, suggestion := range e.Suggestions {
			trimmed := strings.TrimSpace(suggestion)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			out = append(out, trimmed)
		}
	}
	return out
}

// round1 rounds to one decimal place, halves away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
