package models

import (
	"time"

	"github.com/lib/pq"
)

// EmploymentType distinguishes full-time staff from part-time contractors.
type EmploymentType string

const (
	EmploymentFullTime EmploymentType = "full_time"
	EmploymentPartTime EmploymentType = "part_time"
)

// TeacherStatus is the lifecycle state of a teacher profile.
type TeacherStatus string

const (
	TeacherActive    TeacherStatus = "active"
	TeacherInactive  TeacherStatus = "inactive"
	TeacherSuspended TeacherStatus = "suspended"
	TeacherResigned  TeacherStatus = "resigned"
)

// ValidTeacherStatus reports whether the value is a known status.
func ValidTeacherStatus(s TeacherStatus) bool {
	switch s {
	case TeacherActive, TeacherInactive, TeacherSuspended, TeacherResigned:
		return true
	}
	return false
}

// Teacher represents an instructor profile. Code, IDCard and Phone are each
// unique across the roster.
type Teacher struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	FullName       string         `db:"full_name" json:"full_name"`
	EmploymentType EmploymentType `db:"employment_type" json:"employment_type"`
	Gender         *string        `db:"gender" json:"gender,omitempty"`
	BirthDate      *time.Time     `db:"birth_date" json:"birth_date,omitempty"`
	IDCard         *string        `db:"id_card" json:"id_card,omitempty"`
	Phone          *string        `db:"phone" json:"phone,omitempty"`
	Email          *string        `db:"email" json:"email,omitempty"`
	Address        *string        `db:"address" json:"address,omitempty"`
	PhotoURL       *string        `db:"photo_url" json:"photo_url,omitempty"`
	Education      *string        `db:"education" json:"education,omitempty"`
	Major          *string        `db:"major" json:"major,omitempty"`
	GraduateSchool *string        `db:"graduate_school" json:"graduate_school,omitempty"`
	GraduateDate   *time.Time     `db:"graduate_date" json:"graduate_date,omitempty"`
	WorkYears      int            `db:"work_years" json:"work_years"`
	Specialties    pq.StringArray `db:"specialties" json:"specialties,omitempty" swaggertype:"array,string"`
	Status         TeacherStatus  `db:"status" json:"status"`
	JoinDate       *time.Time     `db:"join_date" json:"join_date,omitempty"`
	LastActiveAt   *time.Time     `db:"last_active_at" json:"last_active_at,omitempty"`
	Anonymous      bool           `db:"anonymous" json:"anonymous"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search         string
	Status         *TeacherStatus
	EmploymentType *EmploymentType
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// TeacherStatistics aggregates roster counts.
type TeacherStatistics struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	ByEmploymentType map[string]int `json:"by_employment_type"`
	AverageWorkYears float64        `json:"average_work_years"`
}

// TeacherStatusChange records one status transition including the operator
// supplied reason.
type TeacherStatusChange struct {
	ID         string        `db:"id" json:"id"`
	TeacherID  string        `db:"teacher_id" json:"teacher_id"`
	FromStatus TeacherStatus `db:"from_status" json:"from_status"`
	ToStatus   TeacherStatus `db:"to_status" json:"to_status"`
	Reason     string        `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// DuplicateValue reports a unique-field value shared by multiple rows,
// surfaced by the integrity scan.
type DuplicateValue struct {
	Field string `db:"field" json:"field"`
	Value string `db:"value" json:"value"`
	Count int    `db:"count" json:"count"`
}
