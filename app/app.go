// Package app wires the stores and services of the object store from the
// configuration. The HTTP server and the maintenance commands share it.
package app

import (
	"context"
	"fmt"

	"dicom-object-store/backfill"
	"dicom-object-store/changefeed"
	"dicom-object-store/config"
	"dicom-object-store/content"
	"dicom-object-store/database"
	"dicom-object-store/fs"
	"dicom-object-store/gcs"
	"dicom-object-store/querytag"
	"dicom-object-store/store"
	"dicom-object-store/update"
	"dicom-object-store/validator"

	"github.com/go-pg/pg"
	"github.com/sirupsen/logrus"
)

type App struct {
	Config *config.Config
	DB     *pg.DB
	Logger *logrus.Logger

	Index   *database.IndexStore
	Content *content.Store

	Store      *store.Service
	Delete     *store.DeleteService
	ChangeFeed *changefeed.Service
	QueryTags  *querytag.Service
	Reindexer  *querytag.Reindexer
	Backfill   *backfill.Job
	Update     *update.Service

	closeBlobs func() error
}

// New builds every service on top of db.
func New(ctx context.Context, cfg *config.Config, db *pg.DB, logger *logrus.Logger) (*App, error) {
	mode, err := validator.ParseValidationMode(cfg.Store.ValidationMode)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		DB:         db,
		Logger:     logger,
		Index:      database.NewIndexStore(db),
		closeBlobs: func() error { return nil },
	}

	var blobs content.BlobStore
	switch cfg.Storage.Backend {
	case "gcs":
		s, err := gcs.NewStore(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open gcs bucket: %w", err)
		}
		blobs = s
		a.closeBlobs = s.Close
	case "fs":
		blobs = fs.NewFileManager(cfg.Storage.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	a.Content = content.NewStore(blobs, cfg.Storage.Overwrite)

	tagStore := database.NewExtendedQueryTagStore(db)
	a.QueryTags = querytag.NewService(tagStore, cfg.ExtendedQueryTags.MaxAllowedCount,
		logger.WithField("module", "querytag"))
	a.Reindexer = querytag.NewReindexer(tagStore, a.Index, a.Content,
		cfg.ExtendedQueryTags.BatchSize, cfg.ExtendedQueryTags.BatchCount,
		logger.WithField("module", "reindex"))

	a.Delete = store.NewDeleteService(a.Index, database.NewDeletedInstanceStore(db), a.Content, cfg.Delete,
		logger.WithField("module", "delete"))

	orchestrator := store.NewOrchestrator(a.Index, a.Content, a.Delete, logger.WithField("module", "store"))
	opts := validator.Options{
		Mode:                 mode,
		DropInvalidQueryTags: cfg.Store.DropInvalidQueryTags,
	}
	a.Store = store.NewService(orchestrator, a.QueryTags, opts, cfg.Store.MaxParallelism,
		logger.WithField("module", "store"))

	a.ChangeFeed = changefeed.NewService(database.NewChangeFeedStore(db), cfg.ChangeFeed.MaxLimit)
	a.Backfill = backfill.NewJob(a.Index, a.Content, cfg.Backfill.BatchSize, cfg.Backfill.BatchCount,
		logger.WithField("module", "backfill"))
	a.Update = update.NewService(a.Index, a.Content, cfg.Store.MaxParallelism,
		logger.WithField("module", "update"))

	return a, nil
}

// Close releases the blob backend. The database is owned by the caller.
func (a *App) Close() error {
	return a.closeBlobs()
}
