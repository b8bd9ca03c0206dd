package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-estudiante-api/internal/repository"
	"github.com/noah-isme/portal-estudiante-api/internal/service"
	"github.com/noah-isme/portal-estudiante-api/pkg/cache"
	"github.com/noah-isme/portal-estudiante-api/pkg/config"
	"github.com/noah-isme/portal-estudiante-api/pkg/database"
	"github.com/noah-isme/portal-estudiante-api/pkg/logger"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

// cliApp carries what every subcommand needs once the root has loaded configuration.
type cliApp struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	app := &cliApp{}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Maintenance tasks for the student portal backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			app.cfg = cfg
			app.logger = logr
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}
	root.AddCommand(newMigrateDriveCmd(app), newOutboxCmd(app), newDriveCmd(app))
	return root
}

func newMigrateDriveCmd(app *cliApp) *cobra.Command {
	var opts service.MigrationOptions
	cmd := &cobra.Command{
		Use:   "migrate-drive",
		Short: "Copy documents stored on local disk into the Google Drive folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, app.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			local, err := storage.NewLocalStorage(app.cfg.Storage.LocalDir)
			if err != nil {
				return err
			}
			drive, err := openDrive(ctx, app.cfg.Storage)
			if err != nil {
				return err
			}
			svc := service.NewStorageMigrationService(repository.NewDocumentRepository(db), local, drive, app.logger)
			report, err := svc.Migrate(ctx, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 25, "documents moved per batch")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would move without copying anything")
	return cmd
}

func newOutboxCmd(app *cliApp) *cobra.Command {
	outbox := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain the notification outbox",
	}
	outbox.AddCommand(&cobra.Command{
		Use:   "replay",
		Short: "Deliver every pending or failed outbox entry now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, app.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			svc := newReplayService(ctx, app, db)
			status, err := svc.ReplayOutbox(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	})
	return outbox
}

// newReplayService invalidates cached unread counts when Redis is configured; an unreachable
// Redis only disables that.
func newReplayService(ctx context.Context, app *cliApp, db *sqlx.DB) *service.NotificationService {
	repo := repository.NewNotificationRepository(db)
	var cacheSvc *service.CacheService
	if app.cfg.Notifications.CacheEnabled {
		client, err := cache.NewRedis(ctx, app.cfg.Redis)
		if err != nil {
			app.logger.Warn("redis unavailable, cached counts will expire on their own", zap.Error(err))
		} else {
			cacheSvc = service.NewCacheService(repository.NewCacheRepository(client, app.logger), nil, app.cfg.Notifications.CacheTTL, app.logger, true)
		}
	}
	relay := service.NewOutboxRelay(repo, cacheSvc, nil, app.logger, service.OutboxRelayConfig{
		BatchSize:   app.cfg.Notifications.BatchSize,
		Workers:     app.cfg.Notifications.Workers,
		MaxAttempts: app.cfg.Notifications.MaxAttempts,
	})
	return service.NewNotificationService(repo, relay, cacheSvc, app.logger)
}

func newDriveCmd(app *cliApp) *cobra.Command {
	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "Google Drive folder utilities",
	}
	driveCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the files inside the configured Drive folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drive, err := openDrive(cmd.Context(), app.cfg.Storage)
			if err != nil {
				return err
			}
			return listObjects(cmd.Context(), drive, cmd.OutOrStdout())
		},
	})
	return driveCmd
}

func openDrive(ctx context.Context, cfg config.StorageConfig) (*storage.DriveStorage, error) {
	if cfg.DriveFolderID == "" {
		return nil, fmt.Errorf("GOOGLE_DRIVE_FOLDER_ID is required")
	}
	creds := storage.DriveCredentials{File: cfg.DriveCredentialsFile, JSON: cfg.DriveCredentialsJSON}
	return storage.NewDriveStorage(ctx, cfg.DriveFolderID, creds.ClientOptions()...)
}

func listObjects(ctx context.Context, store storage.ObjectStore, w io.Writer) error {
	objects, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list %s objects: %w", store.Provider(), err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMIME\tSIZE\tCREATED")
	for _, obj := range objects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", obj.ID, obj.Name, obj.MimeType, obj.SizeBytes, obj.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(tw, "\n%d objects\n", len(objects))
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
