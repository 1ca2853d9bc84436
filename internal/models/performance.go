package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Performance levels in descending order of score.
const (
	LevelExcellent = "Excellent"
	LevelGood      = "Good"
	LevelAverage   = "Average"
	LevelPass      = "Pass"
	LevelPoor      = "Poor"
)

// MetricSet holds the operational inputs of the performance score, stored as
// JSONB. Values are on a 0-100 scale.
type MetricSet struct {
	TeachingHours        float64 `json:"teachingHours"`
	StudentSatisfaction  float64 `json:"studentSatisfaction"`
	CourseCompletionRate float64 `json:"courseCompletionRate"`
	AttendanceRate       float64 `json:"attendanceRate"`
	InnovationScore      float64 `json:"innovationScore"`
}

// Value implements driver.Valuer.
func (m MetricSet) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *MetricSet) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// Performance is the computed snapshot for one teacher and calendar month.
// Period is normalised to the first day of the month.
type Performance struct {
	ID                string         `db:"id" json:"id"`
	TeacherID         string         `db:"teacher_id" json:"teacher_id"`
	Period            time.Time      `db:"period" json:"period"`
	AverageEvaluation float64        `db:"average_evaluation" json:"average_evaluation"`
	Metrics           MetricSet      `db:"metrics" json:"metrics"`
	Score             float64        `db:"score" json:"score"`
	Level             string         `db:"level" json:"level"`
	Achievements      pq.StringArray `db:"achievements" json:"achievements,omitempty" swaggertype:"array,string"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// PerformanceRank is one row of a ranking listing, ordered by score.
type PerformanceRank struct {
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Code      string    `db:"code" json:"code"`
	Period    time.Time `db:"period" json:"period"`
	Score     float64   `db:"score" json:"score"`
	Level     string    `db:"level" json:"level"`
}

// PerformanceStatistics aggregates snapshots across the roster.
type PerformanceStatistics struct {
	TotalCount    int            `json:"total_count"`
	CountsByLevel map[string]int `json:"counts_by_level"`
	AverageScore  float64        `json:"average_score"`
}
