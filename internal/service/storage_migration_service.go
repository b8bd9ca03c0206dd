package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

type localDocumentStore interface {
	ListLocal(ctx context.Context, limit int) ([]models.Document, error)
	MoveToDrive(ctx context.Context, id, driveFileID string, webViewLink *string) error
}

// MigrationOptions controls a local to Drive migration run.
type MigrationOptions struct {
	BatchSize int
	DryRun    bool
}

// MigrationReport summarises a migration run.
type MigrationReport struct {
	Scanned  int      `json:"scanned"`
	Migrated int      `json:"migrated"`
	Failed   int      `json:"failed"`
	DryRun   bool     `json:"dry_run"`
	Errors   []string `json:"errors,omitempty"`
}

// StorageMigrationService copies documents stored on local disk into the external store.
type StorageMigrationService struct {
	repo   localDocumentStore
	source storage.ObjectStore
	target storage.ObjectStore
	logger *zap.Logger
}

// NewStorageMigrationService constructs the migrator.
func NewStorageMigrationService(repo localDocumentStore, source, target storage.ObjectStore, logger *zap.Logger) *StorageMigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageMigrationService{repo: repo, source: source, target: target, logger: logger}
}

// Migrate moves local documents batch by batch until none remain or a batch makes no progress.
func (s *StorageMigrationService) Migrate(ctx context.Context, opts MigrationOptions) (*MigrationReport, error) {
	if s.source == nil || s.target == nil {
		return nil, errors.New("migration requires source and target stores")
	}
	if s.target.Provider() != storage.ProviderDrive {
		return nil, fmt.Errorf("migration target must be %s, got %s", storage.ProviderDrive, s.target.Provider())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	report := &MigrationReport{DryRun: opts.DryRun}
	failed := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		docs, err := s.repo.ListLocal(ctx, opts.BatchSize+len(failed))
		if err != nil {
			return report, err
		}
		progressed := 0
		for i := range docs {
			doc := &docs[i]
			if _, skip := failed[doc.ID]; skip {
				continue
			}
			report.Scanned++
			if opts.DryRun {
				s.logger.Info("would migrate document", zap.String("document_id", doc.ID), zap.String("path", doc.ObjectID()))
				continue
			}
			if err := s.migrateOne(ctx, doc); err != nil {
				failed[doc.ID] = struct{}{}
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
				s.logger.Warn("document migration failed", zap.String("document_id", doc.ID), zap.Error(err))
				continue
			}
			report.Migrated++
			progressed++
		}
		if opts.DryRun || progressed == 0 {
			break
		}
	}
	s.logger.Info("storage migration finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("migrated", report.Migrated),
		zap.Int("failed", report.Failed),
		zap.Bool("dry_run", report.DryRun),
	)
	return report, nil
}

func (s *StorageMigrationService) migrateOne(ctx context.Context, doc *models.Document) error {
	localID := doc.ObjectID()
	if localID == "" {
		return errors.New("document has no local path")
	}
	reader, err := s.source.Get(ctx, localID)
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	defer reader.Close() //nolint:errcheck

	obj, err := s.target.Upload(ctx, reader, doc.Name, doc.MimeType)
	if err != nil {
		return fmt.Errorf("upload to drive: %w", err)
	}
	var link *string
	if obj.WebViewLink != "" {
		link = &obj.WebViewLink
	}
	if err := s.repo.MoveToDrive(ctx, doc.ID, obj.ID, link); err != nil {
		if delErr := s.target.Delete(ctx, obj.ID); delErr != nil {
			s.logger.Warn("failed to remove drive copy", zap.String("drive_file_id", obj.ID), zap.Error(delErr))
		}
		return err
	}
	if err := s.source.Delete(ctx, localID); err != nil {
		s.logger.Warn("failed to remove migrated local file", zap.String("path", localID), zap.Error(err))
	}
	return nil
}
