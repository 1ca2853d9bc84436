package handler

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-hub-api/internal/service"
	appErrors "github.com/noah-isme/teacher-hub-api/pkg/errors"
	"github.com/noah-isme/teacher-hub-api/pkg/response"
)

// ExportHandler exposes report export and download endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type generateExportRequest struct {
	Kind      string `json:"kind" binding:"required,oneof=evaluations performance"`
	Format    string `json:"format" binding:"required,oneof=csv pdf"`
	TeacherID string `json:"teacher_id"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
}

// Generate godoc
// @Summary Generate a report export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body handler.generateExportRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	var req generateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	exportReq := service.ExportRequest{
		Kind:      service.ExportKind(req.Kind),
		Format:    service.ExportFormat(req.Format),
		TeacherID: req.TeacherID,
	}
	if req.DateFrom != "" {
		from, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_from"))
			return
		}
		exportReq.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := time.Parse("2006-01-02", req.DateTo)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date_to"))
			return
		}
		exportReq.DateTo = &to
	}

	result, err := h.exports.Generate(c.Request.Context(), exportReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a generated export
// @Tags Exports
// @Param token path string true "Signed download token"
// @Success 200
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.exports.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file not found"))
		return
	}
	file.Close()

	c.FileAttachment(file.Name(), filepath.Base(relPath))
}
