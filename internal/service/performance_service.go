package service

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/dto"
	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

// Weights of the performance score blend. The average evaluation is on a
// 0-5 scale and is stretched to 0-100 before weighting.
const (
	evaluationScale    = 20.0
	evaluationWeight   = 0.30
	hoursWeight        = 0.20
	satisfactionWeight = 0.20
	completionWeight   = 0.15
	attendanceWeight   = 0.10
	innovationWeight   = 0.05
)

// Level boundaries, inclusive on the lower bound.
const (
	excellentFloor = 90.0
	goodFloor      = 80.0
	averageFloor   = 70.0
	passFloor      = 60.0
)

// Achievement badges and their metric thresholds.
const (
	badgeTeachingStar      = "teaching star"
	badgeStudentFavorite   = "student favorite"
	badgeCompletionStar    = "completion star"
	badgeFullAttendance    = "full attendance"
	badgeInnovationPioneer = "innovation pioneer"
)

type performanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Performance, error)
	FindByTeacherAndPeriod(ctx context.Context, teacherID string, period time.Time) (*models.Performance, error)
	Insert(ctx context.Context, perf *models.Performance) error
	Update(ctx context.Context, perf *models.Performance) error
	HistoryByTeacher(ctx context.Context, teacherID string) ([]models.Performance, error)
	Ranking(ctx context.Context, limit int) ([]models.PerformanceRank, error)
	RankingByPeriod(ctx context.Context, period time.Time, limit int) ([]models.PerformanceRank, error)
	Statistics(ctx context.Context) (*models.PerformanceStatistics, error)
	TrendByTeacher(ctx context.Context, teacherID string, months int) ([]models.Performance, error)
}

type evaluationAverager interface {
	AverageOverall(ctx context.Context, teacherID string) (float64, error)
}

// MetricsSource supplies the operational metric inputs of the performance
// score. Implementations integrate course, attendance and research systems.
type MetricsSource interface {
	Collect(ctx context.Context, teacherID string, period time.Time) (models.MetricSet, error)
}

// StaticMetricsSource returns fixed metric values. It stands in for the
// external subsystems until their integrations land.
type StaticMetricsSource struct {
	Metrics models.MetricSet
}

// DefaultMetricsSource returns the stand-in source with its documented values.
func DefaultMetricsSource() *StaticMetricsSource {
	return &StaticMetricsSource{Metrics: models.MetricSet{
		TeachingHours:        80.0,
		StudentSatisfaction:  85.0,
		CourseCompletionRate: 90.0,
		AttendanceRate:       95.0,
		InnovationScore:      75.0,
	}}
}

// Collect implements MetricsSource.
func (s *StaticMetricsSource) Collect(context.Context, string, time.Time) (models.MetricSet, error) {
	return s.Metrics, nil
}

// UpdateMetricsRequest replaces a snapshot's metric inputs.
type UpdateMetricsRequest struct {
	TeachingHours        float64 `json:"teachingHours" validate:"gte=0,lte=100"`
	StudentSatisfaction  float64 `json:"studentSatisfaction" validate:"gte=0,lte=100"`
	CourseCompletionRate float64 `json:"courseCompletionRate" validate:"gte=0,lte=100"`
	AttendanceRate       float64 `json:"attendanceRate" validate:"gte=0,lte=100"`
	InnovationScore      float64 `json:"innovationScore" validate:"gte=0,lte=100"`
}

// PerformanceService computes weighted performance snapshots per teacher and
// calendar month.
type PerformanceService struct {
	repo        performanceRepository
	teachers    teacherReader
	averager    evaluationAverager
	metrics     MetricsSource
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	trendMonths int
}

// NewPerformanceService constructs a PerformanceService.
func NewPerformanceService(repo performanceRepository, teachers teacherReader, averager evaluationAverager, metrics MetricsSource, validate *validator.Validate, logger *zap.Logger) *PerformanceService {
	if metrics == nil {
		metrics = DefaultMetricsSource()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceService{
		repo:        repo,
		teachers:    teachers,
		averager:    averager,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		trendMonths: 12,
	}
}

// SetTrendMonths overrides the trailing window used by Report.
func (s *PerformanceService) SetTrendMonths(months int) {
	if months > 0 {
		s.trendMonths = months
	}
}

// NormalizePeriod truncates a timestamp to the first day of its month in UTC.
func NormalizePeriod(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Calculate computes (or recomputes) the snapshot for one teacher and period.
// Repeated calls for the same period update the existing record in place.
func (s *PerformanceService) Calculate(ctx context.Context, teacherID string, period time.Time) (*models.Performance, error) {
	teacher, err := s.resolveTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	period = NormalizePeriod(period)

	perf, err := s.repo.FindByTeacherAndPeriod(ctx, teacher.ID, period)
	isNew := false
	if err != nil {
		if !isNoRows(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance record")
		}
		perf = &models.Performance{TeacherID: teacher.ID, Period: period}
		isNew = true
	}

	avg, err := s.averager.AverageOverall(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load average evaluation")
	}
	metrics, err := s.metrics.Collect(ctx, teacher.ID, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect performance metrics")
	}

	perf.AverageEvaluation = avg
	perf.Metrics = metrics
	s.score(perf)

	if isNew {
		err = s.repo.Insert(ctx, perf)
	} else {
		err = s.repo.Update(ctx, perf)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store performance record")
	}
	s.logger.Info("performance calculated",
		zap.String("teacher_id", teacher.ID),
		zap.Time("period", period),
		zap.Float64("score", perf.Score),
		zap.String("level", perf.Level))
	return perf, nil
}

// UpdateMetrics replaces a snapshot's metric inputs and recomputes its score
// and level from the stored average evaluation.
func (s *PerformanceService) UpdateMetrics(ctx context.Context, performanceID string, req UpdateMetricsRequest) (*models.Performance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid metrics payload")
	}
	perf, err := s.repo.FindByID(ctx, performanceID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "performance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance record")
	}

	perf.Metrics = models.MetricSet{
		TeachingHours:        req.TeachingHours,
		StudentSatisfaction:  req.StudentSatisfaction,
		CourseCompletionRate: req.CourseCompletionRate,
		AttendanceRate:       req.AttendanceRate,
		InnovationScore:      req.InnovationScore,
	}
	s.score(perf)

	if err := s.repo.Update(ctx, perf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store performance record")
	}
	return perf, nil
}

// History returns all snapshots for a teacher, newest period first.
func (s *PerformanceService) History(ctx context.Context, teacherID string) ([]models.Performance, error) {
	if _, err := s.resolveTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	history, err := s.repo.HistoryByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance history")
	}
	return history, nil
}

// Compare collects the snapshots of several teachers for one period.
func (s *PerformanceService) Compare(ctx context.Context, teacherIDs []string, period time.Time) ([]dto.ComparisonEntry, error) {
	period = NormalizePeriod(period)
	entries := make([]dto.ComparisonEntry, 0, len(teacherIDs))
	for _, teacherID := range teacherIDs {
		teacher, err := s.resolveTeacher(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		entry := dto.ComparisonEntry{Teacher: dto.TeacherSummary{
			ID:             teacher.ID,
			FullName:       teacher.FullName,
			Code:           teacher.Code,
			EmploymentType: teacher.EmploymentType,
		}}
		perf, err := s.repo.FindByTeacherAndPeriod(ctx, teacher.ID, period)
		if err != nil {
			if !isNoRows(err) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance record")
			}
		} else {
			entry.Current = snapshotOf(perf)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ranking lists the highest scoring snapshots across all periods.
func (s *PerformanceService) Ranking(ctx context.Context, limit int) ([]models.PerformanceRank, error) {
	ranks, err := s.repo.Ranking(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance ranking")
	}
	return ranks, nil
}

// RankingByPeriod lists the highest scoring snapshots for one month.
func (s *PerformanceService) RankingByPeriod(ctx context.Context, period time.Time, limit int) ([]models.PerformanceRank, error) {
	ranks, err := s.repo.RankingByPeriod(ctx, NormalizePeriod(period), limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance ranking")
	}
	return ranks, nil
}

// Statistics aggregates snapshot counts by level plus the overall average.
func (s *PerformanceService) Statistics(ctx context.Context) (*models.PerformanceStatistics, error) {
	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance statistics")
	}
	return stats, nil
}

// Report summarises a teacher's performance: latest snapshot, trailing trend
// and period-over-period analysis.
func (s *PerformanceService) Report(ctx context.Context, teacherID string) (*dto.PerformanceReport, error) {
	teacher, err := s.resolveTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	report := &dto.PerformanceReport{
		Teacher: dto.TeacherSummary{
			ID:             teacher.ID,
			FullName:       teacher.FullName,
			Code:           teacher.Code,
			EmploymentType: teacher.EmploymentType,
		},
		GeneratedAt: s.now(),
	}

	history, err := s.repo.HistoryByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance history")
	}
	report.RecordCount = len(history)
	if len(history) == 0 {
		report.Message = "no performance data yet"
		return report, nil
	}

	report.LatestPerformance = snapshotOf(&history[0])

	trend, err := s.repo.TrendByTeacher(ctx, teacherID, s.trendMonths)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance trend")
	}
	report.Trend = trend
	report.Analysis = analyzeHistory(history)
	return report, nil
}

// analyzeHistory derives the change between the two most recent snapshots.
func analyzeHistory(history []models.Performance) *dto.PerformanceAnalysis {
	if len(history) < 2 {
		return &dto.PerformanceAnalysis{Message: "insufficient data"}
	}
	latest, previous := history[0], history[1]
	scoreChange := round2(latest.Score - previous.Score)
	analysis := &dto.PerformanceAnalysis{
		ScoreChange:      scoreChange,
		EvaluationChange: round2(latest.AverageEvaluation - previous.AverageEvaluation),
	}
	switch {
	case scoreChange > 0:
		analysis.Trend = "up"
	case scoreChange < 0:
		analysis.Trend = "down"
	default:
		analysis.Trend = "flat"
	}
	switch {
	case scoreChange > 5:
		analysis.Message = "significant increase"
	case scoreChange > 0:
		analysis.Message = "steady increase"
	case scoreChange < -5:
		analysis.Message = "significant decrease"
	case scoreChange < 0:
		analysis.Message = "slight decrease"
	default:
		analysis.Message = "stable"
	}
	return analysis
}

// score fills the derived fields from the snapshot's average evaluation and
// metric inputs.
func (s *PerformanceService) score(perf *models.Performance) {
	perf.Score = performanceScore(perf.AverageEvaluation, perf.Metrics)
	perf.Level = performanceLevel(perf.Score)
	perf.Achievements = pq.StringArray(achievements(perf.Metrics))
}

// performanceScore blends evaluation and metrics into a 0-100 score.
func performanceScore(avgEvaluation float64, m models.MetricSet) float64 {
	score := avgEvaluation*evaluationScale*evaluationWeight +
		m.TeachingHours*hoursWeight +
		m.StudentSatisfaction*satisfactionWeight +
		m.CourseCompletionRate*completionWeight +
		m.AttendanceRate*attendanceWeight +
		m.InnovationScore*innovationWeight
	return round2(score)
}

// performanceLevel maps a score to its discrete label.
func performanceLevel(score float64) string {
	switch {
	case score >= excellentFloor:
		return models.LevelExcellent
	case score >= goodFloor:
		return models.LevelGood
	case score >= averageFloor:
		return models.LevelAverage
	case score >= passFloor:
		return models.LevelPass
	default:
		return models.LevelPoor
	}
}

// achievements derives threshold badges from the metric inputs. Badges are
// independent; any subset may apply.
func achievements(m models.MetricSet) []string {
	var badges []string
	if m.TeachingHours >= 80 {
		badges = append(badges, badgeTeachingStar)
	}
	if m.StudentSatisfaction >= 95 {
		badges = append(badges, badgeStudentFavorite)
	}
	if m.CourseCompletionRate >= 95 {
		badges = append(badges, badgeCompletionStar)
	}
	if m.AttendanceRate >= 98 {
		badges = append(badges, badgeFullAttendance)
	}
	if m.InnovationScore >= 90 {
		badges = append(badges, badgeInnovationPioneer)
	}
	return badges
}

func snapshotOf(perf *models.Performance) *dto.PerformanceSnapshot {
	return &dto.PerformanceSnapshot{
		Period:            perf.Period,
		Score:             perf.Score,
		Level:             perf.Level,
		AverageEvaluation: perf.AverageEvaluation,
		Metrics:           perf.Metrics,
		Achievements:      perf.Achievements,
	}
}

func (s *PerformanceService) resolveTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// round2 rounds to two decimal places, halves away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
