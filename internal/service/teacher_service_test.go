package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

type fakeTeacherRepo struct {
	teachers      map[string]*models.Teacher
	statusChanges []models.TeacherStatusChange
	nextID        int
	listErr       error
}

func newFakeTeacherRepo() *fakeTeacherRepo {
	return &fakeTeacherRepo{teachers: make(map[string]*models.Teacher)}
}

func (f *fakeTeacherRepo) List(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []models.Teacher
	for _, t := range f.teachers {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeTeacherRepo) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *t
	return &clone, nil
}

func (f *fakeTeacherRepo) FindByCode(_ context.Context, code string) (*models.Teacher, error) {
	for _, t := range f.teachers {
		if t.Code == code {
			clone := *t
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeacherRepo) ExistsByCode(_ context.Context, code, excludeID string) (bool, error) {
	for _, t := range f.teachers {
		if t.Code == code && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeacherRepo) ExistsByIDCard(_ context.Context, idCard, excludeID string) (bool, error) {
	for _, t := range f.teachers {
		if t.IDCard != nil && *t.IDCard == idCard && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeacherRepo) ExistsByPhone(_ context.Context, phone, excludeID string) (bool, error) {
	for _, t := range f.teachers {
		if t.Phone != nil && *t.Phone == phone && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeacherRepo) Create(_ context.Context, teacher *models.Teacher) error {
	f.nextID++
	teacher.ID = fmt.Sprintf("t%d", f.nextID)
	clone := *teacher
	f.teachers[teacher.ID] = &clone
	return nil
}

func (f *fakeTeacherRepo) Update(_ context.Context, teacher *models.Teacher) error {
	if _, ok := f.teachers[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *teacher
	f.teachers[teacher.ID] = &clone
	return nil
}

func (f *fakeTeacherRepo) Delete(_ context.Context, id string) error {
	delete(f.teachers, id)
	return nil
}

func (f *fakeTeacherRepo) UpdateStatus(_ context.Context, id string, status models.TeacherStatus) error {
	t, ok := f.teachers[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	return nil
}

func (f *fakeTeacherRepo) InsertStatusChange(_ context.Context, change *models.TeacherStatusChange) error {
	f.statusChanges = append(f.statusChanges, *change)
	return nil
}

func (f *fakeTeacherRepo) Statistics(_ context.Context) (*models.TeacherStatistics, error) {
	return &models.TeacherStatistics{Total: len(f.teachers)}, nil
}

func (f *fakeTeacherRepo) Recent(_ context.Context, limit int) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, t := range f.teachers {
		out = append(out, *t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestTeacherService(repo teacherRepository) *TeacherService {
	svc := NewTeacherService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	svc.randInt = func(int) int { return 41 }
	return svc
}

func TestTeacherCreateGeneratesCode(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Alice Zhang",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)
	assert.Equal(t, "T202603150042", teacher.Code)
	assert.Equal(t, models.TeacherActive, teacher.Status)
	require.NotNil(t, teacher.JoinDate)
	assert.Equal(t, svc.now(), *teacher.JoinDate)
}

func TestTeacherCreateCodeCollisionRetries(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	taken := &models.Teacher{ID: "x", Code: "T202603150042", Status: models.TeacherActive}
	repo.teachers["x"] = taken

	attempts := 0
	svc.randInt = func(int) int {
		attempts++
		if attempts == 1 {
			return 41 // collides with the seeded code
		}
		return 99
	}

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Bob Li",
		EmploymentType: models.EmploymentPartTime,
	})
	require.NoError(t, err)
	assert.Equal(t, "T202603150100", teacher.Code)
	assert.Equal(t, 2, attempts)
}

func TestTeacherCreateCodeGenerationExhausted(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)
	repo.teachers["x"] = &models.Teacher{ID: "x", Code: "T202603150042"}

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Carol Wu",
		EmploymentType: models.EmploymentFullTime,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestTeacherCreateDuplicateExplicitCode(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)
	repo.teachers["x"] = &models.Teacher{ID: "x", Code: "T001"}

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		Code:           "T001",
		FullName:       "Dup Code",
		EmploymentType: models.EmploymentFullTime,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherCreateDuplicatePhone(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)
	phone := "13800138000"
	repo.teachers["x"] = &models.Teacher{ID: "x", Code: "T001", Phone: &phone}

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Dup Phone",
		EmploymentType: models.EmploymentFullTime,
		Phone:          &phone,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherCreateDuplicateIDCard(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)
	idCard := "110101199001011234"
	repo.teachers["x"] = &models.Teacher{ID: "x", Code: "T001", IDCard: &idCard}

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Dup ID Card",
		EmploymentType: models.EmploymentFullTime,
		IDCard:         &idCard,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "id card")
}

func TestTeacherCreateInvalidPayload(t *testing.T) {
	svc := newTestTeacherService(newFakeTeacherRepo())

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "No Employment",
		EmploymentType: "contractor",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherUpdatePartial(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Original Name",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	name := "Updated Name"
	phone := "13900139000"
	updated, err := svc.Update(context.Background(), created.ID, UpdateTeacherRequest{
		FullName: &name,
		Phone:    &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated Name", updated.FullName)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, phone, *updated.Phone)
	assert.Equal(t, created.Code, updated.Code)
}

func TestTeacherUpdateUnchangedUniqueFieldSkipsCheck(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)
	phone := "13800138000"

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Keeps Phone",
		EmploymentType: models.EmploymentFullTime,
		Phone:          &phone,
	})
	require.NoError(t, err)

	// re-submitting the same phone must not trip the uniqueness check
	updated, err := svc.Update(context.Background(), created.ID, UpdateTeacherRequest{Phone: &phone})
	require.NoError(t, err)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, phone, *updated.Phone)
}

func TestTeacherUpdateNotFound(t *testing.T) {
	svc := newTestTeacherService(newFakeTeacherRepo())

	name := "Ghost"
	_, err := svc.Update(context.Background(), "missing", UpdateTeacherRequest{FullName: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherChangeStatusRecordsReason(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Status Subject",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(context.Background(), created.ID, models.TeacherSuspended, "pending review")
	require.NoError(t, err)
	assert.Equal(t, models.TeacherSuspended, updated.Status)

	require.Len(t, repo.statusChanges, 1)
	change := repo.statusChanges[0]
	assert.Equal(t, models.TeacherActive, change.FromStatus)
	assert.Equal(t, models.TeacherSuspended, change.ToStatus)
	assert.Equal(t, "pending review", change.Reason)
}

func TestTeacherChangeStatusNoOp(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Already Active",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), created.ID, models.TeacherActive, "noop")
	require.NoError(t, err)
	assert.Empty(t, repo.statusChanges)
}

func TestTeacherChangeStatusRejectsUnknown(t *testing.T) {
	svc := newTestTeacherService(newFakeTeacherRepo())

	_, err := svc.ChangeStatus(context.Background(), "any", models.TeacherStatus("retired"), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherDelete(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "To Delete",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	_, err = svc.Get(context.Background(), created.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherGetByCode(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	created, err := svc.Create(context.Background(), CreateTeacherRequest{
		Code:           "T777",
		FullName:       "By Code",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	found, err := svc.GetByCode(context.Background(), "T777")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.GetByCode(context.Background(), "T000")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherListPaginationDefaults(t *testing.T) {
	repo := newFakeTeacherRepo()
	svc := newTestTeacherService(repo)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName:       "Solo",
		EmploymentType: models.EmploymentFullTime,
	})
	require.NoError(t, err)

	_, pagination, err := svc.List(context.Background(), models.TeacherFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
