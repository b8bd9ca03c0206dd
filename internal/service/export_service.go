package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/repository"
	"github.com/noah-isme/portal-estudiante-api/pkg/export"
)

type reportSource interface {
	ListForReport(ctx context.Context, filter models.PaymentFilter) ([]repository.InstallmentReportRow, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error)
}

// ExportConfig holds runtime configuration for payment exports.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult describes a rendered export stored on disk.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

var paymentReportHeaders = []string{"Estudiante", "Documento", "Cuota", "Monto", "Estado", "Vencimiento", "Soporte"}

// ExportService renders installment datasets and stores the files.
type ExportService struct {
	source  reportSource
	storage exportFileStore
	signer  downloadSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs the export generator.
func NewExportService(source reportSource, storage exportFileStore, signer downloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		source:  source,
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the installments report for job and stores the rendered file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := export.RendererFor(string(job.Params.Format))
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset, s.title(job.Params))
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.filename(renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          s.DownloadURL(token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// DownloadURL builds the public link for a signed token.
func (s *ExportService) DownloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}
	return fmt.Sprintf("%s/payments/exports/download?token=%s", prefix, token)
}

// Sign issues a fresh token for an already stored export.
func (s *ExportService) Sign(jobID, relPath string) (string, time.Time, error) {
	return s.signer.Generate(jobID, relPath)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl, falling back to the configured ResultTTL.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) filename(ext string) string {
	return fmt.Sprintf("pagos_%s_%s.%s", s.now().Format("20060102_150405"), randomSuffix(), ext)
}

func (s *ExportService) title(params models.ExportParams) string {
	title := "Reporte de Cuotas"
	if params.Status != "" {
		title += " - " + string(params.Status)
	}
	return title
}

func (s *ExportService) buildDataset(ctx context.Context, params models.ExportParams) (export.Dataset, error) {
	filter := models.PaymentFilter{
		UserID: params.UserID,
		Status: params.Status,
		From:   params.From,
		To:     params.To,
	}
	rows, err := s.source.ListForReport(ctx, filter)
	if err != nil {
		return export.Dataset{}, err
	}
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		support := "No"
		if row.Support != nil && *row.Support != "" {
			support = "Sí"
		}
		data = append(data, map[string]string{
			"Estudiante":  row.FullName,
			"Documento":   row.DocumentNumber,
			"Cuota":       fmt.Sprintf("%d", row.InstallmentNumber),
			"Monto":       fmt.Sprintf("%.2f", row.Amount),
			"Estado":      string(row.CurrentStatus()),
			"Vencimiento": formatReportDate(row.DueDate),
			"Soporte":     support,
		})
	}
	return export.Dataset{Headers: paymentReportHeaders, Rows: data}, nil
}

func formatReportDate(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}
