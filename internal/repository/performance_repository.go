package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

const performanceColumns = `id, teacher_id, period, average_evaluation, metrics, score, level, achievements, created_at, updated_at`

// PerformanceRepository manages persistence for performance snapshots.
type PerformanceRepository struct {
	db *sqlx.DB
}

// NewPerformanceRepository constructs a PerformanceRepository.
func NewPerformanceRepository(db *sqlx.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// FindByID fetches a snapshot by ID.
func (r *PerformanceRepository) FindByID(ctx context.Context, id string) (*models.Performance, error) {
	query := fmt.Sprintf("SELECT %s FROM performances WHERE id = $1", performanceColumns)
	var perf models.Performance
	if err := r.db.GetContext(ctx, &perf, query, id); err != nil {
		return nil, err
	}
	return &perf, nil
}

// FindByTeacherAndPeriod fetches the snapshot for one teacher and month.
func (r *PerformanceRepository) FindByTeacherAndPeriod(ctx context.Context, teacherID string, period time.Time) (*models.Performance, error) {
	query := fmt.Sprintf("SELECT %s FROM performances WHERE teacher_id = $1 AND period = $2", performanceColumns)
	var perf models.Performance
	if err := r.db.GetContext(ctx, &perf, query, teacherID, period); err != nil {
		return nil, err
	}
	return &perf, nil
}

// Insert stores a new snapshot.
func (r *PerformanceRepository) Insert(ctx context.Context, perf *models.Performance) error {
	if perf.ID == "" {
		perf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if perf.CreatedAt.IsZero() {
		perf.CreatedAt = now
	}
	perf.UpdatedAt = now
	const query = `INSERT INTO performances (id, teacher_id, period, average_evaluation, metrics, score, level, achievements, created_at, updated_at)
		VALUES (:id, :teacher_id, :period, :average_evaluation, :metrics, :score, :level, :achievements, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, perf); err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}
	return nil
}

// Update replaces the computed fields of an existing snapshot.
func (r *PerformanceRepository) Update(ctx context.Context, perf *models.Performance) error {
	perf.UpdatedAt = time.Now().UTC()
	const query = `UPDATE performances SET average_evaluation = :average_evaluation, metrics = :metrics, score = :score, level = :level, achievements = :achievements, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, perf); err != nil {
		return fmt.Errorf("update performance: %w", err)
	}
	return nil
}

// HistoryByTeacher returns all snapshots for a teacher, newest period first.
func (r *PerformanceRepository) HistoryByTeacher(ctx context.Context, teacherID string) ([]models.Performance, error) {
	query := fmt.Sprintf("SELECT %s FROM performances WHERE teacher_id = $1 ORDER BY period DESC", performanceColumns)
	var history []models.Performance
	if err := r.db.SelectContext(ctx, &history, query, teacherID); err != nil {
		return nil, fmt.Errorf("performance history: %w", err)
	}
	return history, nil
}

// Ranking lists the highest scoring snapshots across all periods.
func (r *PerformanceRepository) Ranking(ctx context.Context, limit int) ([]models.PerformanceRank, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT p.teacher_id, t.full_name, t.code, p.period, p.score, p.level
		FROM performances p
		JOIN teachers t ON t.id = p.teacher_id
		ORDER BY p.score DESC
		LIMIT %d`, limit)
	var ranks []models.PerformanceRank
	if err := r.db.SelectContext(ctx, &ranks, query); err != nil {
		return nil, fmt.Errorf("performance ranking: %w", err)
	}
	return ranks, nil
}

// RankingByPeriod lists the highest scoring snapshots for one month.
func (r *PerformanceRepository) RankingByPeriod(ctx context.Context, period time.Time, limit int) ([]models.PerformanceRank, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT p.teacher_id, t.full_name, t.code, p.period, p.score, p.level
		FROM performances p
		JOIN teachers t ON t.id = p.teacher_id
		WHERE p.period = $1
		ORDER BY p.score DESC
		LIMIT %d`, limit)
	var ranks []models.PerformanceRank
	if err := r.db.SelectContext(ctx, &ranks, query, period); err != nil {
		return nil, fmt.Errorf("performance ranking by period: %w", err)
	}
	return ranks, nil
}

// Statistics aggregates snapshot counts by level plus the overall average.
func (r *PerformanceRepository) Statistics(ctx context.Context) (*models.PerformanceStatistics, error) {
	stats := &models.PerformanceStatistics{CountsByLevel: make(map[string]int)}

	type countRow struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT level AS key, COUNT(*) AS count FROM performances GROUP BY level`); err != nil {
		return nil, fmt.Errorf("count performances by level: %w", err)
	}
	for _, row := range rows {
		stats.CountsByLevel[row.Key] = row.Count
		stats.TotalCount += row.Count
	}

	if err := r.db.GetContext(ctx, &stats.AverageScore, `SELECT COALESCE(AVG(score), 0) FROM performances`); err != nil {
		return nil, fmt.Errorf("average performance score: %w", err)
	}
	return stats, nil
}

// TrendByTeacher returns snapshots within the trailing month window, oldest
// period first.
func (r *PerformanceRepository) TrendByTeacher(ctx context.Context, teacherID string, months int) ([]models.Performance, error) {
	if months <= 0 {
		months = 12
	}
	cutoff := time.Now().UTC().AddDate(0, -months, 0)
	query := fmt.Sprintf("SELECT %s FROM performances WHERE teacher_id = $1 AND period >= $2 ORDER BY period ASC", performanceColumns)
	var trend []models.Performance
	if err := r.db.SelectContext(ctx, &trend, query, teacherID, cutoff); err != nil {
		return nil, fmt.Errorf("performance trend: %w", err)
	}
	return trend, nil
}
