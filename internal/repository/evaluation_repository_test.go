package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

func TestEvaluationCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec("INSERT INTO evaluations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	evaluation := &models.Evaluation{
		TeacherID:      "t1",
		EvaluatorType:  models.EvaluatorStudent,
		EvaluatorID:    "student-1",
		EvaluationDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Scores:         models.ScoreMap{"teaching": 4.5},
		OverallScore:   4.5,
		Status:         "submitted",
	}
	require.NoError(t, repo.Create(context.Background(), evaluation))
	assert.NotEmpty(t, evaluation.ID)
	assert.False(t, evaluation.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationListByTeacherAndDateRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "evaluator_type", "evaluator_id", "evaluation_date", "overall_score", "anonymous", "status", "created_at"}).
		AddRow("e1", "t1", "student", "student-1", from.AddDate(0, 0, 1), 4.5, false, "submitted", time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM evaluations WHERE 1=1 AND teacher_id = \$1 AND evaluation_date >= \$2 AND evaluation_date <= \$3 ORDER BY evaluation_date DESC, created_at DESC`).
		WithArgs("t1", from, to).
		WillReturnRows(rows)

	evaluations, err := repo.List(context.Background(), models.EvaluationFilter{
		TeacherID: "t1",
		DateFrom:  &from,
		DateTo:    &to,
	})
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, models.EvaluatorStudent, evaluations[0].EvaluatorType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationHasSubmission(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM evaluations WHERE teacher_id = $1 AND evaluator_id = $2 AND evaluation_type = $3")).
		WithArgs("t1", "student-1", "2026-spring").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.HasSubmission(context.Background(), "t1", "student-1", "2026-spring")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationAverageOverall(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(AVG(overall_score), 0) FROM evaluations WHERE teacher_id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4.3))

	avg, err := repo.AverageOverall(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 4.3, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationCountsByEvaluatorType(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(`SELECT evaluator_type AS key, COUNT\(\*\) AS count FROM evaluations WHERE teacher_id = \$1 GROUP BY evaluator_type`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow("student", 12).
			AddRow("peer", 3))

	counts, total, err := repo.CountsByEvaluatorType(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	assert.Equal(t, map[string]int{"student": 12, "peer": 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationTopRated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	rows := sqlmock.NewRows([]string{"teacher_id", "full_name", "code", "average_score", "evaluation_count"}).
		AddRow("t1", "Alice Zhang", "T001", 4.8, 15).
		AddRow("t2", "Bob Li", "T002", 4.2, 9)
	mock.ExpectQuery(`SELECT t\.id AS teacher_id, t\.full_name, t\.code`).
		WillReturnRows(rows)

	ranked, err := repo.TopRated(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Alice Zhang", ranked[0].FullName)
	assert.Equal(t, 4.8, ranked[0].AverageScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}
