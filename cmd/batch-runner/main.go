package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	"github.com/noah-isme/teacher-hub-api/internal/repository"
	"github.com/noah-isme/teacher-hub-api/internal/service"
	"github.com/noah-isme/teacher-hub-api/pkg/config"
	"github.com/noah-isme/teacher-hub-api/pkg/database"
	"github.com/noah-isme/teacher-hub-api/pkg/logger"
)

// batch-runner executes maintenance jobs outside the request path:
//
//	performance  recalculate the performance snapshot of every active teacher
//	inactivity   mark teachers without recent activity as inactive
//	integrity    report duplicate values in unique teacher columns
func main() {
	var (
		jobName   string
		periodRaw string
		chunkSize int
		sleep     time.Duration
		dryRun    bool
	)

	flag.StringVar(&jobName, "job", "", "Job to run: performance, inactivity or integrity")
	flag.StringVar(&periodRaw, "period", "", "Period for the performance job (YYYY-MM), defaults to current month")
	flag.IntVar(&chunkSize, "chunk-size", 0, "Teachers per chunk (defaults to BATCH_CHUNK_SIZE)")
	flag.DurationVar(&sleep, "sleep", -1, "Pause between chunks (defaults to BATCH_SLEEP)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	flag.Parse()

	if jobName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if chunkSize <= 0 {
		chunkSize = cfg.Batch.ChunkSize
	}
	if sleep < 0 {
		sleep = cfg.Batch.Sleep
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	teacherRepo := repository.NewTeacherRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	performanceRepo := repository.NewPerformanceRepository(db)

	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	performanceService := service.NewPerformanceService(performanceRepo, teacherRepo, evaluationRepo, nil, validate, logr)

	ctx := context.Background()

	var failed int
	switch jobName {
	case "performance":
		period := time.Now().UTC()
		if periodRaw != "" {
			period, err = time.Parse("2006-01", periodRaw)
			if err != nil {
				log.Fatalf("invalid -period %q, expected YYYY-MM", periodRaw)
			}
		}
		failed = runPerformance(ctx, logr, teacherRepo, performanceService, period, chunkSize, sleep, dryRun)
	case "inactivity":
		failed = runInactivity(ctx, logr, teacherRepo, teacherService, cfg.Batch.InactiveDays, chunkSize, dryRun)
	case "integrity":
		failed = runIntegrity(ctx, logr, teacherRepo)
	default:
		log.Fatalf("unknown job %q", jobName)
	}

	if failed > 0 {
		logr.Warn("job finished with failures", zap.String("job", jobName), zap.Int("failed", failed))
		os.Exit(1)
	}
	logr.Info("job finished", zap.String("job", jobName))
}

func runPerformance(ctx context.Context, logr *zap.Logger, teachers *repository.TeacherRepository, performances *service.PerformanceService, period time.Time, chunkSize int, sleep time.Duration, dryRun bool) int {
	period = service.NormalizePeriod(period)
	active := models.TeacherActive
	page := 1
	processed, failed := 0, 0

	for {
		chunk, total, err := teachers.List(ctx, models.TeacherFilter{
			Status:   &active,
			Page:     page,
			PageSize: chunkSize,
			SortBy:   "created_at",
		})
		if err != nil {
			logr.Error("failed to list teachers", zap.Int("page", page), zap.Error(err))
			return failed + 1
		}
		if len(chunk) == 0 {
			break
		}

		for _, teacher := range chunk {
			if dryRun {
				fmt.Printf("would recalculate %s (%s) for %s\n", teacher.FullName, teacher.Code, period.Format("2006-01"))
				continue
			}
			if _, err := performances.Calculate(ctx, teacher.ID, period); err != nil {
				failed++
				logr.Error("recalculation failed",
					zap.String("teacher_id", teacher.ID), zap.Error(err))
			}
		}
		processed += len(chunk)
		logr.Info("chunk processed",
			zap.Int("page", page), zap.Int("processed", processed), zap.Int("total", total))

		if processed >= total {
			break
		}
		page++
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
	return failed
}

func runInactivity(ctx context.Context, logr *zap.Logger, teachers *repository.TeacherRepository, directory *service.TeacherService, inactiveDays, limit int, dryRun bool) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -inactiveDays)
	stale, err := teachers.FindInactive(ctx, cutoff, limit)
	if err != nil {
		logr.Error("failed to find inactive teachers", zap.Error(err))
		return 1
	}

	failed := 0
	reason := fmt.Sprintf("no recorded activity since %s", cutoff.Format("2006-01-02"))
	for _, teacher := range stale {
		if dryRun {
			fmt.Printf("would mark %s (%s) inactive: %s\n", teacher.FullName, teacher.Code, reason)
			continue
		}
		if _, err := directory.ChangeStatus(ctx, teacher.ID, models.TeacherInactive, reason); err != nil {
			failed++
			logr.Error("status change failed",
				zap.String("teacher_id", teacher.ID), zap.Error(err))
		}
	}
	logr.Info("inactivity sweep done", zap.Int("candidates", len(stale)), zap.Int("failed", failed))
	return failed
}

func runIntegrity(ctx context.Context, logr *zap.Logger, teachers *repository.TeacherRepository) int {
	duplicates, err := teachers.DuplicateValues(ctx)
	if err != nil {
		logr.Error("failed to scan for duplicates", zap.Error(err))
		return 1
	}
	if len(duplicates) == 0 {
		fmt.Println("no duplicate values found")
		return 0
	}
	for _, dup := range duplicates {
		fmt.Printf("%s %q appears %d times\n", dup.Field, dup.Value, dup.Count)
	}
	logr.Warn("duplicate values found", zap.Int("count", len(duplicates)))
	return 0
}
