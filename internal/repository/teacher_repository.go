package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-hub-api/internal/models"
)

const teacherColumns = `id, code, full_name, employment_type, gender, birth_date, id_card, phone, email, address, photo_url, education, major, graduate_school, graduate_date, work_years, specialties, status, join_date, last_active_at, anonymous, created_at, updated_at`

// TeacherRepository manages persistence for teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.EmploymentType != nil {
		conditions = append(conditions, fmt.Sprintf("employment_type = $%d", len(args)+1))
		args = append(args, *filter.EmploymentType)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(code) LIKE $%d OR LOWER(COALESCE(phone, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"code":       "code",
		"join_date":  "join_date",
		"work_years": "work_years",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindByCode fetches a teacher by its unique code.
func (r *TeacherRepository) FindByCode(ctx context.Context, code string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE code = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, code); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByCode checks if another teacher uses the same code.
func (r *TeacherRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return r.existsBy(ctx, "code", code, excludeID)
}

// ExistsByIDCard checks if another teacher uses the same national ID number.
func (r *TeacherRepository) ExistsByIDCard(ctx context.Context, idCard, excludeID string) (bool, error) {
	return r.existsBy(ctx, "id_card", idCard, excludeID)
}

// ExistsByPhone checks if another teacher uses the same phone number.
func (r *TeacherRepository) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	return r.existsBy(ctx, "phone", phone, excludeID)
}

func (r *TeacherRepository) existsBy(ctx context.Context, column, value, excludeID string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}
	query := fmt.Sprintf("SELECT 1 FROM teachers WHERE %s = $1", column)
	args := []interface{}{value}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher %s: %w", column, err)
	}
	return true, nil
}

// Create inserts a new teacher record.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now

	const query = `INSERT INTO teachers (id, code, full_name, employment_type, gender, birth_date, id_card, phone, email, address, photo_url, education, major, graduate_school, graduate_date, work_years, specialties, status, join_date, last_active_at, anonymous, created_at, updated_at)
		VALUES (:id, :code, :full_name, :employment_type, :gender, :birth_date, :id_card, :phone, :email, :address, :photo_url, :education, :major, :graduate_school, :graduate_date, :work_years, :specialties, :status, :join_date, :last_active_at, :anonymous, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update modifies an existing teacher record.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET code = :code, full_name = :full_name, employment_type = :employment_type, gender = :gender, birth_date = :birth_date, id_card = :id_card, phone = :phone, email = :email, address = :address, photo_url = :photo_url, education = :education, major = :major, graduate_school = :graduate_school, graduate_date = :graduate_date, work_years = :work_years, specialties = :specialties, status = :status, join_date = :join_date, last_active_at = :last_active_at, anonymous = :anonymous, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// Delete removes a teacher record permanently.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM teachers WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}

// UpdateStatus changes a teacher's status.
func (r *TeacherRepository) UpdateStatus(ctx context.Context, id string, status models.TeacherStatus) error {
	const query = `UPDATE teachers SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher status: %w", err)
	}
	return nil
}

// InsertStatusChange appends a row to the status history.
func (r *TeacherRepository) InsertStatusChange(ctx context.Context, change *models.TeacherStatusChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_status_changes (id, teacher_id, from_status, to_status, reason, created_at)
		VALUES (:id, :teacher_id, :from_status, :to_status, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, change); err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

// Statistics aggregates roster counts by status and employment type.
func (r *TeacherRepository) Statistics(ctx context.Context) (*models.TeacherStatistics, error) {
	stats := &models.TeacherStatistics{
		ByStatus:         make(map[string]int),
		ByEmploymentType: make(map[string]int),
	}

	type countRow struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	var statusRows []countRow
	if err := r.db.SelectContext(ctx, &statusRows, `SELECT status AS key, COUNT(*) AS count FROM teachers GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count teachers by status: %w", err)
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Key] = row.Count
		stats.Total += row.Count
	}

	var typeRows []countRow
	if err := r.db.SelectContext(ctx, &typeRows, `SELECT employment_type AS key, COUNT(*) AS count FROM teachers GROUP BY employment_type`); err != nil {
		return nil, fmt.Errorf("count teachers by type: %w", err)
	}
	for _, row := range typeRows {
		stats.ByEmploymentType[row.Key] = row.Count
	}

	if err := r.db.GetContext(ctx, &stats.AverageWorkYears, `SELECT COALESCE(AVG(work_years), 0) FROM teachers`); err != nil {
		return nil, fmt.Errorf("average work years: %w", err)
	}

	return stats, nil
}

// Recent returns the most recently created teachers.
func (r *TeacherRepository) Recent(ctx context.Context, limit int) ([]models.Teacher, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf("SELECT %s FROM teachers ORDER BY created_at DESC LIMIT %d", teacherColumns, limit)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("recent teachers: %w", err)
	}
	return teachers, nil
}

// FindInactive returns active teachers whose last activity is older than the
// cutoff, or who never recorded activity.
func (r *TeacherRepository) FindInactive(ctx context.Context, cutoff time.Time, limit int) ([]models.Teacher, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE status = $1 AND (last_active_at IS NULL OR last_active_at < $2) ORDER BY last_active_at ASC NULLS FIRST LIMIT %d", teacherColumns, limit)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, models.TeacherActive, cutoff); err != nil {
		return nil, fmt.Errorf("find inactive teachers: %w", err)
	}
	return teachers, nil
}

// DuplicateValues scans unique columns for values shared by multiple rows.
func (r *TeacherRepository) DuplicateValues(ctx context.Context) ([]models.DuplicateValue, error) {
	const query = `
		SELECT 'code' AS field, code AS value, COUNT(*) AS count FROM teachers GROUP BY code HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'id_card' AS field, id_card AS value, COUNT(*) AS count FROM teachers WHERE id_card IS NOT NULL GROUP BY id_card HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'phone' AS field, phone AS value, COUNT(*) AS count FROM teachers WHERE phone IS NOT NULL GROUP BY phone HAVING COUNT(*) > 1
		ORDER BY field, value`
	var duplicates []models.DuplicateValue
	if err := r.db.SelectContext(ctx, &duplicates, query); err != nil {
		return nil, fmt.Errorf("scan duplicate values: %w", err)
	}
	return duplicates, nil
}
