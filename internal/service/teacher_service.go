package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

const codeGenerationAttempts = 5

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByCode(ctx context.Context, code string) (*models.Teacher, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	ExistsByIDCard(ctx context.Context, idCard, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.TeacherStatus) error
	InsertStatusChange(ctx context.Context, change *models.TeacherStatusChange) error
	Statistics(ctx context.Context) (*models.TeacherStatistics, error)
	Recent(ctx context.Context, limit int) ([]models.Teacher, error)
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	Code           string                `json:"code" validate:"omitempty,max=20"`
	FullName       string                `json:"full_name" validate:"required,max=100"`
	EmploymentType models.EmploymentType `json:"employment_type" validate:"required,oneof=full_time part_time"`
	Gender         *string               `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate      *time.Time            `json:"birth_date"`
	IDCard         *string               `json:"id_card" validate:"omitempty,min=6,max=32"`
	Phone          *string               `json:"phone" validate:"omitempty,min=6,max=20"`
	Email          *string               `json:"email" validate:"omitempty,email"`
	Address        *string               `json:"address" validate:"omitempty,max=500"`
	PhotoURL       *string               `json:"photo_url" validate:"omitempty,url"`
	Education      *string               `json:"education" validate:"omitempty,max=100"`
	Major          *string               `json:"major" validate:"omitempty,max=100"`
	GraduateSchool *string               `json:"graduate_school" validate:"omitempty,max=200"`
	GraduateDate   *time.Time            `json:"graduate_date"`
	WorkYears      int                   `json:"work_years" validate:"gte=0"`
	Specialties    []string              `json:"specialties" validate:"omitempty,dive,max=50"`
	JoinDate       *time.Time            `json:"join_date"`
	Anonymous      bool                  `json:"anonymous"`
}

// UpdateTeacherRequest represents a partial update; nil fields are untouched.
type UpdateTeacherRequest struct {
	Code           *string                `json:"code" validate:"omitempty,max=20"`
	FullName       *string                `json:"full_name" validate:"omitempty,max=100"`
	EmploymentType *models.EmploymentType `json:"employment_type" validate:"omitempty,oneof=full_time part_time"`
	Gender         *string                `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate      *time.Time             `json:"birth_date"`
	IDCard         *string                `json:"id_card" validate:"omitempty,min=6,max=32"`
	Phone          *string                `json:"phone" validate:"omitempty,min=6,max=20"`
	Email          *string                `json:"email" validate:"omitempty,email"`
	Address        *string                `json:"address" validate:"omitempty,max=500"`
	PhotoURL       *string                `json:"photo_url" validate:"omitempty,url"`
	Education      *string                `json:"education" validate:"omitempty,max=100"`
	Major          *string                `json:"major" validate:"omitempty,max=100"`
	GraduateSchool *string                `json:"graduate_school" validate:"omitempty,max=200"`
	GraduateDate   *time.Time             `json:"graduate_date"`
	WorkYears      *int                   `json:"work_years" validate:"omitempty,gte=0"`
	Specialties    []string               `json:"specialties" validate:"omitempty,dive,max=50"`
	JoinDate       *time.Time             `json:"join_date"`
	Anonymous      *bool                  `json:"anonymous"`
}

// TeacherService owns teacher profile lifecycle and uniqueness rules.
type TeacherService struct {
	repo      teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	randInt   func(n int) int
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		randInt:   rand.Intn,
	}
}

// List returns teachers plus pagination data. Search, status and employment
// type filters cover the lookup queries of the admin surface.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return teachers, pagination, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// GetByCode returns a teacher by its unique code.
func (s *TeacherService) GetByCode(ctx context.Context, code string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher profile. Code, ID card and phone must not
// collide with existing rows; an absent code is generated.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	code := strings.TrimSpace(req.Code)
	if code != "" {
		exists, err := s.repo.ExistsByCode(ctx, code, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher code already used")
		}
	} else {
		generated, err := s.generateCode(ctx)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	if err := s.ensureUniqueContacts(ctx, req.IDCard, req.Phone, ""); err != nil {
		return nil, err
	}

	now := s.now()
	joinDate := req.JoinDate
	if joinDate == nil {
		joinDate = &now
	}
	teacher := &models.Teacher{
		Code:           code,
		FullName:       strings.TrimSpace(req.FullName),
		EmploymentType: req.EmploymentType,
		Gender:         normalizeOptional(req.Gender),
		BirthDate:      req.BirthDate,
		IDCard:         normalizeOptional(req.IDCard),
		Phone:          normalizeOptional(req.Phone),
		Email:          normalizeOptional(req.Email),
		Address:        normalizeOptional(req.Address),
		PhotoURL:       normalizeOptional(req.PhotoURL),
		Education:      normalizeOptional(req.Education),
		Major:          normalizeOptional(req.Major),
		GraduateSchool: normalizeOptional(req.GraduateSchool),
		GraduateDate:   req.GraduateDate,
		WorkYears:      req.WorkYears,
		Specialties:    pq.StringArray(req.Specialties),
		Status:         models.TeacherActive,
		JoinDate:       joinDate,
		Anonymous:      req.Anonymous,
	}

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID), zap.String("code", teacher.Code))
	return teacher, nil
}

// Update applies the present fields of the request. Unique fields are only
// re-checked when they actually change.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Code != nil && strings.TrimSpace(*req.Code) != teacher.Code {
		code := strings.TrimSpace(*req.Code)
		exists, err := s.repo.ExistsByCode(ctx, code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher code already used")
		}
		teacher.Code = code
	}
	if req.IDCard != nil && !sameOptional(req.IDCard, teacher.IDCard) {
		exists, err := s.repo.ExistsByIDCard(ctx, strings.TrimSpace(*req.IDCard), id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check id card uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "id card already used")
		}
		teacher.IDCard = normalizeOptional(req.IDCard)
	}
	if req.Phone != nil && !sameOptional(req.Phone, teacher.Phone) {
		exists, err := s.repo.ExistsByPhone(ctx, strings.TrimSpace(*req.Phone), id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check phone uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "phone already used")
		}
		teacher.Phone = normalizeOptional(req.Phone)
	}

	if req.FullName != nil {
		teacher.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.EmploymentType != nil {
		teacher.EmploymentType = *req.EmploymentType
	}
	if req.Gender != nil {
		teacher.Gender = normalizeOptional(req.Gender)
	}
	if req.BirthDate != nil {
		teacher.BirthDate = req.BirthDate
	}
	if req.Email != nil {
		teacher.Email = normalizeOptional(req.Email)
	}
	if req.Address != nil {
		teacher.Address = normalizeOptional(req.Address)
	}
	if req.PhotoURL != nil {
		teacher.PhotoURL = normalizeOptional(req.PhotoURL)
	}
	if req.Education != nil {
		teacher.Education = normalizeOptional(req.Education)
	}
	if req.Major != nil {
		teacher.Major = normalizeOptional(req.Major)
	}
	if req.GraduateSchool != nil {
		teacher.GraduateSchool = normalizeOptional(req.GraduateSchool)
	}
	if req.GraduateDate != nil {
		teacher.GraduateDate = req.GraduateDate
	}
	if req.WorkYears != nil {
		teacher.WorkYears = *req.WorkYears
	}
	if req.Specialties != nil {
		teacher.Specialties = pq.StringArray(req.Specialties)
	}
	if req.JoinDate != nil {
		teacher.JoinDate = req.JoinDate
	}
	if req.Anonymous != nil {
		teacher.Anonymous = *req.Anonymous
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// ChangeStatus moves the teacher to a new status and records the transition
// with the supplied reason.
func (s *TeacherService) ChangeStatus(ctx context.Context, id string, status models.TeacherStatus, reason string) (*models.Teacher, error) {
	if !models.ValidTeacherStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown teacher status %q", status))
	}
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if teacher.Status == status {
		return teacher, nil
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher status")
	}
	change := &models.TeacherStatusChange{
		TeacherID:  id,
		FromStatus: teacher.Status,
		ToStatus:   status,
		Reason:     strings.TrimSpace(reason),
	}
	if err := s.repo.InsertStatusChange(ctx, change); err != nil {
		s.logger.Warn("failed to record status change", zap.String("teacher_id", id), zap.Error(err))
	}
	teacher.Status = status
	return teacher, nil
}

// Delete removes a teacher permanently.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	s.logger.Info("teacher deleted", zap.String("teacher_id", id))
	return nil
}

// Statistics aggregates roster counts.
func (s *TeacherService) Statistics(ctx context.Context) (*models.TeacherStatistics, error) {
	stats, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher statistics")
	}
	return stats, nil
}

// Recent returns the most recently created teachers.
func (s *TeacherService) Recent(ctx context.Context, limit int) ([]models.Teacher, error) {
	teachers, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent teachers")
	}
	return teachers, nil
}

// generateCode builds a code of the form T<yyyymmdd><nnnn> and retries a few
// times when the value is already taken.
func (s *TeacherService) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code := fmt.Sprintf("T%s%04d", s.now().Format("20060102"), s.randInt(9999)+1)
		exists, err := s.repo.ExistsByCode(ctx, code, "")
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
		}
		if !exists {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not generate a unique teacher code")
}

func (s *TeacherService) ensureUniqueContacts(ctx context.Context, idCard, phone *string, excludeID string) error {
	if idCard != nil {
		trimmed := strings.TrimSpace(*idCard)
		if trimmed != "" {
			exists, err := s.repo.ExistsByIDCard(ctx, trimmed, excludeID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check id card uniqueness")
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "id card already used")
			}
		}
	}
	if phone != nil {
		trimmed := strings.TrimSpace(*phone)
		if trimmed != "" {
			exists, err := s.repo.ExistsByPhone(ctx, trimmed, excludeID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check phone uniqueness")
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "phone already used")
			}
		}
	}
	return nil
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.TrimSpace(*a) == strings.TrimSpace(*b)
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
