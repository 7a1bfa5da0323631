package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/middleware"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/service"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/response"
)

type studentService interface {
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, input service.StudentInput) (*models.Student, error)
	Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error)
	Remove(ctx context.Context, id string) error
}

type directoryReader interface {
	List(q directory.Query) ([]models.Student, error)
}

type exportRenderer interface {
	Render(students []models.Student, q directory.Query, format service.ExportFormat) (*service.ExportFile, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students  studentService
	directory directoryReader
	exports   exportRenderer
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, dir directoryReader, exports exportRenderer) *StudentHandler {
	return &StudentHandler{students: students, directory: dir, exports: exports}
}

func queryFromRequest(c *gin.Context) (directory.Query, error) {
	q, err := directory.ParseQuery(c.Query("search"), c.Query("sortBy"), c.Query("status"), c.Query("career"))
	if err != nil {
		return q, appErrors.ErrValidation.With(err, err.Error())
	}
	return q, nil
}

// List godoc
// @Summary Directory view of students
// @Tags Students
// @Produce json
// @Param search query string false "Substring of full name or DNI without dots"
// @Param sortBy query string false "a-z, z-a, reciente or antiguo"
// @Param status query string false "todos, activo, pendiente or inactivo"
// @Param career query string false "todas or a career name"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	q, err := queryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	students, err := h.directory.List(q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(students))
	middleware.SetMeta(c, "query", q)
	response.JSON(c, http.StatusOK, students, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export the directory view
// @Tags Students
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf"
// @Param search query string false "Search text"
// @Param sortBy query string false "Sort key"
// @Param status query string false "Status filter"
// @Param career query string false "Career filter"
// @Success 200 {file} file
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	q, err := queryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	students, err := h.directory.List(q)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Render(students, q, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Get godoc
// @Summary Get a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Create godoc
// @Summary Create a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.StudentInput true "Student form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrValidation.With(err, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Partially update a student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [patch]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrValidation.With(err, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Delete godoc
// @Summary Delete a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Failure 502 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Careers godoc
// @Summary List careers offered by the institute
// @Tags Careers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /careers [get]
func Careers(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.Careers)
}
