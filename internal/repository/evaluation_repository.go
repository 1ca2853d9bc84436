package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

const evaluationColumns = `id, teacher_id, evaluator_type, evaluator_id, evaluation_type, evaluation_date, items, scores, overall_score, comments, suggestions, anonymous, status, created_at`

// EvaluationRepository manages persistence for evaluation events.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs an EvaluationRepository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create inserts a new evaluation. Evaluations are immutable once stored.
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	if evaluation.CreatedAt.IsZero() {
		evaluation.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluations (id, teacher_id, evaluator_type, evaluator_id, evaluation_type, evaluation_date, items, scores, overall_score, comments, suggestions, anonymous, status, created_at)
		VALUES (:id, :teacher_id, :evaluator_type, :evaluator_id, :evaluation_type, :evaluation_date, :items, :scores, :overall_score, :comments, :suggestions, :anonymous, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evaluation); err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// List returns evaluations matching the filter, newest first.
func (r *EvaluationRepository) List(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error) {
	base := "FROM evaluations WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.EvaluatorType != nil {
		conditions = append(conditions, fmt.Sprintf("evaluator_type = $%d", len(args)+1))
		args = append(args, *filter.EvaluatorType)
	}
	if filter.EvaluationType != "" {
		conditions = append(conditions, fmt.Sprintf("evaluation_type = $%d", len(args)+1))
		args = append(args, filter.EvaluationType)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("evaluation_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("evaluation_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY evaluation_date DESC, created_at DESC", evaluationColumns, base)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, (page-1)*filter.PageSize)
	}

	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, args...); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return evaluations, nil
}

// HasSubmission reports whether the evaluator already submitted this
// evaluation type for the teacher.
func (r *EvaluationRepository) HasSubmission(ctx context.Context, teacherID, evaluatorID, evaluationType string) (bool, error) {
	const query = `SELECT COUNT(*) FROM evaluations WHERE teacher_id = $1 AND evaluator_id = $2 AND evaluation_type = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID, evaluatorID, evaluationType); err != nil {
		return false, fmt.Errorf("check evaluation submission: %w", err)
	}
	return count > 0, nil
}

// AverageOverall returns the mean overall score across all of a teacher's
// evaluations, 0 when none exist.
func (r *EvaluationRepository) AverageOverall(ctx context.Context, teacherID string) (float64, error) {
	const query = `SELECT COALESCE(AVG(overall_score), 0) FROM evaluations WHERE teacher_id = $1`
	var avg float64
	if err := r.db.GetContext(ctx, &avg, query, teacherID); err != nil {
		return 0, fmt.Errorf("average overall score: %w", err)
	}
	return avg, nil
}

// AverageByEvaluatorType returns the mean overall score restricted to one
// evaluator type.
func (r *EvaluationRepository) AverageByEvaluatorType(ctx context.Context, teacherID string, evaluatorType models.EvaluatorType) (float64, error) {
	const query = `SELECT COALESCE(AVG(overall_score), 0) FROM evaluations WHERE teacher_id = $1 AND evaluator_type = $2`
	var avg float64
	if err := r.db.GetContext(ctx, &avg, query, teacherID, evaluatorType); err != nil {
		return 0, fmt.Errorf("average score by evaluator type: %w", err)
	}
	return avg, nil
}

// CountsByEvaluatorType returns submission counts grouped by evaluator type.
func (r *EvaluationRepository) CountsByEvaluatorType(ctx context.Context, teacherID string) (map[string]int, int, error) {
	const query = `SELECT evaluator_type AS key, COUNT(*) AS count FROM evaluations WHERE teacher_id = $1 GROUP BY evaluator_type`
	type countRow struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, 0, fmt.Errorf("count evaluations by type: %w", err)
	}
	counts := make(map[string]int, len(rows))
	total := 0
	for _, row := range rows {
		counts[row.Key] = row.Count
		total += row.Count
	}
	return counts, total, nil
}

// TopRated lists teachers ranked by average overall score.
func (r *EvaluationRepository) TopRated(ctx context.Context, limit int) ([]models.TeacherAverageScore, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT t.id AS teacher_id, t.full_name, t.code,
		AVG(e.overall_score) AS average_score, COUNT(e.id) AS evaluation_count
		FROM evaluations e
		JOIN teachers t ON t.id = e.teacher_id
		GROUP BY t.id, t.full_name, t.code
		ORDER BY average_score DESC
		LIMIT %d`, limit)
	var rows []models.TeacherAverageScore
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("top rated teachers: %w", err)
	}
	return rows, nil
}
