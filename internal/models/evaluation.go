package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EvaluatorType categorises who submitted an evaluation.
type EvaluatorType string

const (
	EvaluatorStudent    EvaluatorType = "student"
	EvaluatorPeer       EvaluatorType = "peer"
	EvaluatorManagement EvaluatorType = "management"
	EvaluatorSelf       EvaluatorType = "self"
)

// ScoreMap holds per-item numeric scores, stored as JSONB.
type ScoreMap map[string]float64

// Value implements driver.Valuer.
func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ScoreMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// RatingMap holds per-item textual ratings, stored as JSONB.
type RatingMap map[string]string

// Value implements driver.Valuer.
func (m RatingMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *RatingMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// Evaluation is one immutable evaluation event for a teacher.
type Evaluation struct {
	ID             string         `db:"id" json:"id"`
	TeacherID      string         `db:"teacher_id" json:"teacher_id"`
	EvaluatorType  EvaluatorType  `db:"evaluator_type" json:"evaluator_type"`
	EvaluatorID    string         `db:"evaluator_id" json:"evaluator_id"`
	EvaluationType string         `db:"evaluation_type" json:"evaluation_type,omitempty"`
	EvaluationDate time.Time      `db:"evaluation_date" json:"evaluation_date"`
	Items          RatingMap      `db:"items" json:"items,omitempty"`
	Scores         ScoreMap       `db:"scores" json:"scores,omitempty"`
	OverallScore   float64        `db:"overall_score" json:"overall_score"`
	Comments       *string        `db:"comments" json:"comments,omitempty"`
	Suggestions    pq.StringArray `db:"suggestions" json:"suggestions,omitempty" swaggertype:"array,string"`
	Anonymous      bool           `db:"anonymous" json:"anonymous"`
	Status         string         `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// EvaluationFilter captures list criteria for evaluations.
type EvaluationFilter struct {
	TeacherID      string
	EvaluatorType  *EvaluatorType
	EvaluationType string
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
}

// EvaluationStatistics summarises evaluations for one teacher.
type EvaluationStatistics struct {
	TotalCount        int            `json:"total_count"`
	CountsByType      map[string]int `json:"counts_by_evaluator_type"`
	AverageScore      float64        `json:"average_score"`
	StudentAverage    float64        `json:"student_average"`
	PeerAverage       float64        `json:"peer_average"`
	ManagementAverage float64        `json:"management_average"`
	SelfAverage       float64        `json:"self_average"`
}

// TeacherAverageScore is one row of the top-rated listing.
type TeacherAverageScore struct {
	TeacherID       string  `db:"teacher_id" json:"teacher_id"`
	FullName        string  `db:"full_name" json:"full_name"`
	Code            string  `db:"code" json:"code"`
	AverageScore    float64 `db:"average_score" json:"average_score"`
	EvaluationCount int     `db:"evaluation_count" json:"evaluation_count"`
}
