package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/export"
)

// ExportFormat names a rendered file type.
type ExportFormat = models.ExportFormat

const (
	ExportCSV = models.ExportFormatCSV
	ExportPDF = models.ExportFormatPDF
)

// ParseExportFormat accepts csv or pdf, defaulting to csv.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", value))
}

// ExportFile is a rendered export ready to be sent.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

var exportHeaders = []string{"Apellido", "Nombre", "DNI", "Fecha de nacimiento", "Email", "Celular", "Carrera", "Estado"}

// ExportService renders directory views as CSV or PDF.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService; nil renderers get the defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = &export.PDFExporter{Widths: []float64{3, 3, 2, 2, 4, 2.5, 5, 1.5}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Dataset turns a view into rows in view order.
func (s *ExportService) Dataset(students []models.Student, q directory.Query) export.Dataset {
	rows := make([][]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, []string{
			st.LastName,
			st.FirstName,
			st.DNI,
			st.BirthDate,
			st.Email,
			st.PhoneMobile,
			st.Career,
			string(st.DisplayStatus()),
		})
	}
	return export.Dataset{Title: exportTitle(q, len(students)), Headers: exportHeaders, Rows: rows}
}

// Render produces the export file for a view.
func (s *ExportService) Render(students []models.Student, q directory.Query, format ExportFormat) (*ExportFile, error) {
	data := s.Dataset(students, q)
	stamp := s.now().UTC().Format("20060102-150405")

	var (
		body []byte
		err  error
		file ExportFile
	)
	switch format {
	case ExportPDF:
		body, err = s.pdf.Render(data)
		file = ExportFile{Filename: "alumnos-" + stamp + ".pdf", ContentType: "application/pdf"}
	default:
		body, err = s.csv.Render(data)
		file = ExportFile{Filename: "alumnos-" + stamp + ".csv", ContentType: "text/csv; charset=utf-8"}
	}
	if err != nil {
		s.logger.Error("render export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.ErrInternal.With(err, "failed to render export")
	}
	file.Body = body
	return &file, nil
}

func exportTitle(q directory.Query, count int) string {
	parts := []string{fmt.Sprintf("Alumnos (%d)", count)}
	if q.Career != "" && q.Career != directory.CareerAll {
		parts = append(parts, q.Career)
	}
	if q.Status != "" && q.Status != directory.StatusAll {
		parts = append(parts, q.Status)
	}
	if strings.TrimSpace(q.Search) != "" {
		parts = append(parts, fmt.Sprintf("búsqueda %q", strings.TrimSpace(q.Search)))
	}
	return strings.Join(parts, " · ")
}
