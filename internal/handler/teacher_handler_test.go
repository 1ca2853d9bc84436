package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-hub-api/internal/models"
	"github.com/noah-isme/teacher-hub-api/internal/service"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
)

func seedTeacher() *models.Teacher {
	return &models.Teacher{
		ID:             "t1",
		Code:           "T001",
		FullName:       "Alice Zhang",
		EmploymentType: models.EmploymentFullTime,
		Status:         models.TeacherActive,
	}
}

func newTeacherHandler(repo *stubTeacherRepo) *TeacherHandler {
	return NewTeacherHandler(service.NewTeacherService(repo, nil, nil))
}

func TestTeacherHandlerGet(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo(seedTeacher()))

	w := perform(h.Get, http.MethodGet, "/teachers/t1", nil, gin.Params{{Key: "id", Value: "t1"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var teacher models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &teacher))
	assert.Equal(t, "T001", teacher.Code)
}

func TestTeacherHandlerGetNotFound(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo())

	w := perform(h.Get, http.MethodGet, "/teachers/missing", nil, gin.Params{{Key: "id", Value: "missing"}}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, env.Error.Code)
}

func TestTeacherHandlerCreate(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo())

	body := `{"full_name":"Bob Li","employment_type":"part_time"}`
	w := perform(h.Create, http.MethodPost, "/teachers", strings.NewReader(body), nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	env := decodeEnvelope(t, w)
	var teacher models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &teacher))
	assert.NotEmpty(t, teacher.ID)
	assert.NotEmpty(t, teacher.Code)
	assert.Equal(t, models.TeacherActive, teacher.Status)
}

func TestTeacherHandlerCreateInvalidJSON(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo())

	w := perform(h.Create, http.MethodPost, "/teachers", strings.NewReader("{"), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerList(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo(seedTeacher()))

	w := perform(h.List, http.MethodGet, "/teachers?status=active&page=1&limit=10", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, 10, env.Pagination.PageSize)
}

func TestTeacherHandlerChangeStatus(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo(seedTeacher()))

	body := `{"status":"suspended","reason":"pending review"}`
	w := perform(h.ChangeStatus, http.MethodPatch, "/teachers/t1/status", strings.NewReader(body), gin.Params{{Key: "id", Value: "t1"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var teacher models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &teacher))
	assert.Equal(t, models.TeacherSuspended, teacher.Status)
}

func TestTeacherHandlerChangeStatusMissingField(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo(seedTeacher()))

	w := perform(h.ChangeStatus, http.MethodPatch, "/teachers/t1/status", strings.NewReader(`{"reason":"x"}`), gin.Params{{Key: "id", Value: "t1"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerDelete(t *testing.T) {
	repo := newStubTeacherRepo(seedTeacher())
	h := newTeacherHandler(repo)

	w := perform(h.Delete, http.MethodDelete, "/teachers/t1", nil, gin.Params{{Key: "id", Value: "t1"}}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.teachers)
}

func TestTeacherHandlerStatistics(t *testing.T) {
	h := newTeacherHandler(newStubTeacherRepo(seedTeacher()))

	w := perform(h.Statistics, http.MethodGet, "/teachers/statistics", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	var stats models.TeacherStatistics
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestTeacherHandlerRecentDefaultLimit(t *testing.T) {
	repo := newStubTeacherRepo(seedTeacher())
	h := newTeacherHandler(repo)

	w := perform(h.Recent, http.MethodGet, "/teachers/recent", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, repo.lastRecentLimit)

	w = perform(h.Recent, http.MethodGet, "/teachers/recent?limit=3", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, repo.lastRecentLimit)
}
