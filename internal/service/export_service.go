package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	"github.com/noah-isme/office-appointment-api/pkg/export"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportPageSize = 100

type agendaLister interface {
	List(ctx context.Context, req dto.AppointmentListRequest) ([]models.Appointment, *models.Pagination, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportResult is a rendered agenda ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders appointment agendas as CSV or PDF.
type ExportService struct {
	appointments agendaLister
	csv          csvRenderer
	pdf          pdfRenderer
	logger       *zap.Logger
	cfg          ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(appointments agendaLister, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{appointments: appointments, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// Export collects every appointment matching the filter and renders it.
func (s *ExportService) Export(ctx context.Context, req dto.AppointmentExportRequest) (*ExportResult, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	items, err := s.collect(ctx, req.AppointmentListRequest)
	if err != nil {
		return nil, err
	}
	table := buildAgendaTable(req.AppointmentListRequest, items)

	var payload []byte
	contentType := "text/csv"
	switch format {
	case ExportFormatPDF:
		payload, err = s.pdf.Render(table)
		contentType = "application/pdf"
	default:
		payload, err = s.csv.Render(table)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportResult{
		Filename:    exportFilename(req.AppointmentListRequest, format),
		ContentType: contentType,
		Payload:     payload,
		Rows:        len(items),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, filter dto.AppointmentListRequest) ([]models.Appointment, error) {
	filter.PageSize = exportPageSize
	var all []models.Appointment
	for page := 1; ; page++ {
		filter.Page = page
		items, pagination, err := s.appointments.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(all) >= s.cfg.MaxRows {
			s.logger.Sugar().Warnw("export truncated", "rows", s.cfg.MaxRows, "total", pagination.TotalCount)
			return all[:s.cfg.MaxRows], nil
		}
		if len(items) < exportPageSize || len(all) >= pagination.TotalCount {
			return all, nil
		}
	}
}

func buildAgendaTable(filter dto.AppointmentListRequest, items []models.Appointment) export.Table {
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.AppointmentDate.Format(scheduling.DateLayout),
			a.StartTime.Format(scheduling.ClockLayout),
			a.EndTime.Format(scheduling.ClockLayout),
			a.FullName,
			strconv.FormatInt(a.UnitID, 10),
			string(a.Status),
			deref(a.Agenda),
			deref(a.Email),
			a.CreatedBy,
		})
	}
	return export.Table{
		Title:    "Appointment Agenda",
		Subtitle: describeFilter(filter),
		Columns:  []string{"ID", "Date", "Start", "End", "Name", "Unit", "Status", "Agenda", "Email", "Created By"},
		Widths:   []float64{1, 2, 1.2, 1.2, 3, 1, 1.6, 4, 3, 2.5},
		Rows:     rows,
	}
}

func describeFilter(f dto.AppointmentListRequest) string {
	var parts []string
	if f.Date != "" {
		parts = append(parts, "date "+f.Date)
	}
	if f.From != "" || f.To != "" {
		parts = append(parts, fmt.Sprintf("range %s..%s", f.From, f.To))
	}
	if f.UnitID != nil {
		parts = append(parts, fmt.Sprintf("unit %d", *f.UnitID))
	}
	if f.Status != "" {
		parts = append(parts, "status "+f.Status)
	}
	if len(parts) == 0 {
		return "All appointments"
	}
	return strings.Join(parts, ", ")
}

func exportFilename(f dto.AppointmentListRequest, format string) string {
	scope := "all"
	switch {
	case f.Date != "":
		scope = f.Date
	case f.From != "" || f.To != "":
		scope = strings.Trim(f.From+"_"+f.To, "_")
	}
	return fmt.Sprintf("agenda_%s.%s", scope, format)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
