package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
	"github.com/noah-isme/teacher-hub-api/pkg/storage"
)

type fakePerformanceExporter struct {
	history []models.Performance
	ranks   []models.PerformanceRank
}

func (f *fakePerformanceExporter) HistoryByTeacher(context.Context, string) ([]models.Performance, error) {
	return f.history, nil
}

func (f *fakePerformanceExporter) Ranking(context.Context, int) ([]models.PerformanceRank, error) {
	return f.ranks, nil
}

func newTestExportService(t *testing.T, evaluations *fakeEvaluationRepo, performances *fakePerformanceExporter) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	teachers := &fakeTeacherReader{teachers: map[string]*models.Teacher{
		"t1": {ID: "t1", Code: "T001", FullName: "Alice Zhang", EmploymentType: models.EmploymentFullTime},
	}}
	return NewExportService(evaluations, performances, teachers, store, signer, ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
}

func TestExportEvaluationsCSV(t *testing.T) {
	comments := "great class"
	evaluations := &fakeEvaluationRepo{evaluations: []models.Evaluation{
		{
			TeacherID:      "t1",
			EvaluatorType:  models.EvaluatorStudent,
			EvaluatorID:    "student-1",
			EvaluationType: "2026-spring",
			EvaluationDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
			OverallScore:   4.8,
			Comments:       &comments,
		},
		{
			TeacherID:      "t1",
			EvaluatorType:  models.EvaluatorPeer,
			EvaluatorID:    "peer-1",
			EvaluationDate: time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
			OverallScore:   4.0,
			Anonymous:      true,
		},
	}}
	svc := newTestExportService(t, evaluations, &fakePerformanceExporter{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportEvaluations,
		Format:    FormatCSV,
		TeacherID: "t1",
	})
	require.NoError(t, err)
	assert.Contains(t, result.URL, "/api/v1/exports/download/")
	assert.Equal(t, FormatCSV, result.Format)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	raw, err := io.ReadAll(file)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Evaluator Type", "Evaluator", "Type", "Overall Score", "Comments"}, records[0])
	assert.Equal(t, []string{"2026-04-02", "student", "student-1", "2026-spring", "4.8", "great class"}, records[1])
	assert.Equal(t, "anonymous", records[2][2])
}

func TestExportTokenRoundTrip(t *testing.T) {
	svc := newTestExportService(t, &fakeEvaluationRepo{}, &fakePerformanceExporter{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportEvaluations,
		Format:    FormatCSV,
		TeacherID: "t1",
	})
	require.NoError(t, err)

	_, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, result.RelativePath, relPath)
	assert.WithinDuration(t, result.ExpiresAt, expiresAt, time.Second)

	_, _, _, err = svc.ParseToken(result.Token+"tampered", false)
	assert.Error(t, err)
}

func TestExportPerformanceRanking(t *testing.T) {
	performances := &fakePerformanceExporter{ranks: []models.PerformanceRank{
		{TeacherID: "t1", FullName: "Alice Zhang", Code: "T001", Period: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), Score: 86.75, Level: models.LevelGood},
	}}
	svc := newTestExportService(t, &fakeEvaluationRepo{}, performances)

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:   ExportPerformance,
		Format: FormatCSV,
	})
	require.NoError(t, err)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	raw, err := io.ReadAll(file)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"1", "Alice Zhang", "T001", "2026-04", "86.75", "Good"}, records[1])
}

func TestExportPerformancePDF(t *testing.T) {
	performances := &fakePerformanceExporter{history: []models.Performance{
		{TeacherID: "t1", Period: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), Score: 86.75, Level: models.LevelGood, AverageEvaluation: 4.5},
	}}
	svc := newTestExportService(t, &fakeEvaluationRepo{}, performances)

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportPerformance,
		Format:    FormatPDF,
		TeacherID: "t1",
	})
	require.NoError(t, err)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	header := make([]byte, 4)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportRejectsUnknownKindAndFormat(t *testing.T) {
	svc := newTestExportService(t, &fakeEvaluationRepo{}, &fakePerformanceExporter{})

	_, err := svc.Generate(context.Background(), ExportRequest{Kind: "grades", Format: FormatCSV})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), ExportRequest{Kind: ExportEvaluations, Format: "xlsx", TeacherID: "t1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportEvaluationsRequiresTeacher(t *testing.T) {
	svc := newTestExportService(t, &fakeEvaluationRepo{}, &fakePerformanceExporter{})

	_, err := svc.Generate(context.Background(), ExportRequest{Kind: ExportEvaluations, Format: FormatCSV})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

