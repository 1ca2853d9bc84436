package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

func metricsJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(models.MetricSet{
		TeachingHours:        80,
		StudentSatisfaction:  85,
		CourseCompletionRate: 90,
		AttendanceRate:       95,
		InnovationScore:      75,
	})
	require.NoError(t, err)
	return raw
}

func TestPerformanceFindByTeacherAndPeriod(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	period := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "period", "average_evaluation", "metrics", "score", "level", "created_at", "updated_at"}).
		AddRow("p1", "t1", period, 4.5, metricsJSON(t), 86.75, models.LevelGood, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM performances WHERE teacher_id = \$1 AND period = \$2`).
		WithArgs("t1", period).
		WillReturnRows(rows)

	perf, err := repo.FindByTeacherAndPeriod(context.Background(), "t1", period)
	require.NoError(t, err)
	assert.Equal(t, 86.75, perf.Score)
	assert.Equal(t, 80.0, perf.Metrics.TeachingHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM performances WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	perf, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, perf)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceInsertAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectExec("INSERT INTO performances").
		WillReturnResult(sqlmock.NewResult(0, 1))

	perf := &models.Performance{
		TeacherID: "t1",
		Period:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Score:     86.75,
		Level:     models.LevelGood,
	}
	require.NoError(t, repo.Insert(context.Background(), perf))
	assert.NotEmpty(t, perf.ID)
	assert.False(t, perf.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectExec("UPDATE performances SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	perf := &models.Performance{ID: "p1", TeacherID: "t1", Score: 90.0, Level: models.LevelExcellent}
	require.NoError(t, repo.Update(context.Background(), perf))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRankingByPeriod(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	period := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"teacher_id", "full_name", "code", "period", "score", "level"}).
		AddRow("t1", "Alice Zhang", "T001", period, 86.75, models.LevelGood)

	mock.ExpectQuery(`SELECT p\.teacher_id, t\.full_name, t\.code, p\.period, p\.score, p\.level`).
		WithArgs(period).
		WillReturnRows(rows)

	ranks, err := repo.RankingByPeriod(context.Background(), period, 10)
	require.NoError(t, err)
	require.Len(t, ranks, 1)
	assert.Equal(t, "T001", ranks[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStatistics(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	mock.ExpectQuery(`SELECT level AS key, COUNT\(\*\) AS count FROM performances GROUP BY level`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow(models.LevelGood, 4).
			AddRow(models.LevelExcellent, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(AVG(score), 0) FROM performances")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(85.4))

	stats, err := repo.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalCount)
	assert.Equal(t, 4, stats.CountsByLevel[models.LevelGood])
	assert.Equal(t, 85.4, stats.AverageScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceTrendByTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPerformanceRepository(db)

	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "period", "average_evaluation", "metrics", "score", "level", "created_at", "updated_at"}).
		AddRow("p1", "t1", period, 4.0, metricsJSON(t), 78.0, models.LevelAverage, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM performances WHERE teacher_id = \$1 AND period >= \$2 ORDER BY period ASC`).
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	trend, err := repo.TrendByTeacher(context.Background(), "t1", 12)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Equal(t, 78.0, trend[0].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}
