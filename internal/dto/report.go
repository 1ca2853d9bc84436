package dto

import (
	"time"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

// TeacherSummary is the header block shared by both report types.
type TeacherSummary struct {
	ID             string                `json:"id"`
	FullName       string                `json:"full_name"`
	Code           string                `json:"code"`
	EmploymentType models.EmploymentType `json:"employment_type"`
}

// TrendBucket is one month of evaluation activity.
type TrendBucket struct {
	Month        string  `json:"month"`
	AverageScore float64 `json:"average_score"`
	Count        int     `json:"count"`
}

// ItemAverage is one evaluation item with its mean score across submissions.
type ItemAverage struct {
	Item         string  `json:"item"`
	AverageScore float64 `json:"average_score"`
}

// EvaluationReport aggregates one teacher's evaluations.
type EvaluationReport struct {
	Teacher         TeacherSummary              `json:"teacher"`
	Statistics      models.EvaluationStatistics `json:"statistics"`
	Trend           []TrendBucket               `json:"trend"`
	Strengths       []ItemAverage               `json:"strengths"`
	Weaknesses      []ItemAverage               `json:"weaknesses"`
	Suggestions     []string                    `json:"suggestions"`
	EvaluationCount int                         `json:"evaluation_count"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// PerformanceSnapshot is the condensed view of one performance record.
type PerformanceSnapshot struct {
	Period            time.Time        `json:"period"`
	Score             float64          `json:"score"`
	Level             string           `json:"level"`
	AverageEvaluation float64          `json:"average_evaluation"`
	Metrics           models.MetricSet `json:"metrics"`
	Achievements      []string         `json:"achievements"`
}

// PerformanceAnalysis compares the two most recent snapshots.
type PerformanceAnalysis struct {
	ScoreChange      float64 `json:"score_change"`
	EvaluationChange float64 `json:"evaluation_change"`
	Trend            string  `json:"trend"`
	Message          string  `json:"message"`
}

// PerformanceReport summarises a teacher's performance history.
type PerformanceReport struct {
	Teacher           TeacherSummary       `json:"teacher"`
	LatestPerformance *PerformanceSnapshot `json:"latest_performance,omitempty"`
	Trend             []models.Performance `json:"trend,omitempty"`
	Analysis          *PerformanceAnalysis `json:"analysis,omitempty"`
	RecordCount       int                  `json:"record_count"`
	Message           string               `json:"message,omitempty"`
	GeneratedAt       time.Time            `json:"generated_at"`
}

// ComparisonEntry is one teacher's snapshot within a period comparison.
type ComparisonEntry struct {
	Teacher TeacherSummary       `json:"teacher"`
	Current *PerformanceSnapshot `json:"current,omitempty"`
}
