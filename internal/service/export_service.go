package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
	"github.com/noah-isme/teacher-hub-api/pkg/export"
	"github.com/noah-isme/teacher-hub-api/pkg/storage"
)

// ExportKind selects the dataset an export renders.
type ExportKind string

const (
	ExportEvaluations ExportKind = "evaluations"
	ExportPerformance ExportKind = "performance"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportRequest describes one export. TeacherID is required for evaluation
// exports; a performance export without it renders the global ranking.
type ExportRequest struct {
	Kind      ExportKind
	Format    ExportFormat
	TeacherID string
	DateFrom  *time.Time
	DateTo    *time.Time
}

type evaluationLister interface {
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.Evaluation, error)
}

type performanceExporter interface {
	HistoryByTeacher(ctx context.Context, teacherID string) ([]models.Performance, error)
	Ranking(ctx context.Context, limit int) ([]models.PerformanceRank, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix    string
	ResultTTL    time.Duration
	RankingLimit int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	evaluations  evaluationLister
	performances performanceExporter
	teachers     teacherReader
	storage      fileStorage
	csv          csvRenderer
	pdf          pdfRenderer
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(evaluations evaluationLister, performances performanceExporter, teachers teacherReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.RankingLimit <= 0 {
		cfg.RankingLimit = 50
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		evaluations:  evaluations,
		performances: performances,
		teachers:     teachers,
		storage:      store,
		csv:          csv,
		pdf:          pdf,
		signer:       signer,
		logger:       logger,
		cfg:          cfg,
	}
}

// Generate builds the requested dataset, renders it and stores the file. The
// returned URL carries a signed download token.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	dataset, title, err := s.buildDataset(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch req.Format {
	case FormatCSV:
		payload, err = s.csv.Render(dataset)
	case FormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", req.Format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(req), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("export generated",
		zap.String("kind", string(req.Kind)),
		zap.String("format", string(req.Format)),
		zap.String("path", relPath))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       req.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, defaulting to the configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, req ExportRequest) (export.Dataset, string, error) {
	switch req.Kind {
	case ExportEvaluations:
		return s.buildEvaluationDataset(ctx, req)
	case ExportPerformance:
		if req.TeacherID != "" {
			return s.buildPerformanceHistoryDataset(ctx, req.TeacherID)
		}
		return s.buildRankingDataset(ctx)
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export kind %q", req.Kind))
	}
}

func (s *ExportService) buildEvaluationDataset(ctx context.Context, req ExportRequest) (export.Dataset, string, error) {
	teacher, err := s.resolveExportTeacher(ctx, req.TeacherID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	evaluations, err := s.evaluations.List(ctx, models.EvaluationFilter{
		TeacherID: teacher.ID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
	})
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluations")
	}
	rows := make([]map[string]string, 0, len(evaluations))
	for _, ev := range evaluations {
		evaluator := ev.EvaluatorID
		if ev.Anonymous {
			evaluator = "anonymous"
		}
		comments := ""
		if ev.Comments != nil {
			comments = *ev.Comments
		}
		rows = append(rows, map[string]string{
			"Date":           ev.EvaluationDate.UTC().Format("2006-01-02"),
			"Evaluator Type": string(ev.EvaluatorType),
			"Evaluator":      evaluator,
			"Type":           ev.EvaluationType,
			"Overall Score":  fmt.Sprintf("%.1f", ev.OverallScore),
			"Comments":       comments,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Evaluator Type", "Evaluator", "Type", "Overall Score", "Comments"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Evaluations %s (%s)", teacher.FullName, teacher.Code)
	return dataset, title, nil
}

func (s *ExportService) buildPerformanceHistoryDataset(ctx context.Context, teacherID string) (export.Dataset, string, error) {
	teacher, err := s.resolveExportTeacher(ctx, teacherID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	history, err := s.performances.HistoryByTeacher(ctx, teacher.ID)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance history")
	}
	rows := make([]map[string]string, 0, len(history))
	for _, perf := range history {
		rows = append(rows, map[string]string{
			"Period":             perf.Period.UTC().Format("2006-01"),
			"Score":              fmt.Sprintf("%.2f", perf.Score),
			"Level":              perf.Level,
			"Average Evaluation": fmt.Sprintf("%.1f", perf.AverageEvaluation),
			"Achievements":       strings.Join(perf.Achievements, "; "),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Period", "Score", "Level", "Average Evaluation", "Achievements"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Performance History %s (%s)", teacher.FullName, teacher.Code)
	return dataset, title, nil
}

func (s *ExportService) buildRankingDataset(ctx context.Context) (export.Dataset, string, error) {
	ranks, err := s.performances.Ranking(ctx, s.cfg.RankingLimit)
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load performance ranking")
	}
	rows := make([]map[string]string, 0, len(ranks))
	for i, rank := range ranks {
		rows = append(rows, map[string]string{
			"Rank":    fmt.Sprintf("%d", i+1),
			"Teacher": rank.FullName,
			"Code":    rank.Code,
			"Period":  rank.Period.UTC().Format("2006-01"),
			"Score":   fmt.Sprintf("%.2f", rank.Score),
			"Level":   rank.Level,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Rank", "Teacher", "Code", "Period", "Score", "Level"},
		Rows:    rows,
	}
	return dataset, "Performance Ranking", nil
}

func (s *ExportService) resolveExportTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func (s *ExportService) buildFilename(req ExportRequest) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	if req.TeacherID != "" {
		scope = sanitizeFilename(req.TeacherID)
	}
	return fmt.Sprintf("%s_%s_%s.%s", req.Kind, scope, timestamp, req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
