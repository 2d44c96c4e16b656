package store

import (
	"context"
	"errors"
	"time"

	"dicom-object-store/config"
	"dicom-object-store/metrics"
	"dicom-object-store/models"

	"github.com/sirupsen/logrus"
)

type DeleteIndexStore interface {
	DeleteInstanceIndex(ctx context.Context, id models.InstanceIdentifier, cleanupAfter time.Time) ([]models.DeletedInstance, error)
	DeleteSeriesIndex(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error)
	DeleteStudyIndex(ctx context.Context, partitionKey int, studyInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error)
	DeleteInstanceIndexByWatermark(ctx context.Context, id models.VersionedInstanceIdentifier) ([]models.DeletedInstance, error)
	GetStaleCreatingInstances(ctx context.Context, olderThan time.Time, limit int) ([]models.VersionedInstanceIdentifier, error)
}

type DeletedInstanceLedger interface {
	RetrieveDeletedInstances(ctx context.Context, batchSize, maxRetries int) ([]*models.DeletedInstance, error)
	DeleteDeletedInstance(ctx context.Context, entry *models.DeletedInstance) error
	IncrementDeletedInstanceRetry(ctx context.Context, entry *models.DeletedInstance, cleanupAfter time.Time) (int, error)
	GetOldestDeletedInstance(ctx context.Context) (time.Time, error)
}

type ContentDeleter interface {
	DeleteInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) error
	DeleteInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) error
}

// DeleteService removes instances from the index and their blobs from the
// content store. Blob removal is deferred to the cleanup reaper except for
// compensating deletes.
type DeleteService struct {
	Index   DeleteIndexStore
	Ledger  DeletedInstanceLedger
	Content ContentDeleter
	Config  config.DeleteConfig
	Logger  logrus.FieldLogger

	now func() time.Time
}

func NewDeleteService(index DeleteIndexStore, ledger DeletedInstanceLedger, content ContentDeleter, cfg config.DeleteConfig, logger logrus.FieldLogger) *DeleteService {
	return &DeleteService{
		Index:   index,
		Ledger:  ledger,
		Content: content,
		Config:  cfg,
		Logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *DeleteService) cleanupAfter() time.Time {
	return s.now().Add(s.Config.Delay)
}

func (s *DeleteService) DeleteStudy(ctx context.Context, partitionKey int, studyInstanceUID string) error {
	_, err := s.Index.DeleteStudyIndex(ctx, partitionKey, studyInstanceUID, s.cleanupAfter())
	return err
}

func (s *DeleteService) DeleteSeries(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string) error {
	_, err := s.Index.DeleteSeriesIndex(ctx, partitionKey, studyInstanceUID, seriesInstanceUID, s.cleanupAfter())
	return err
}

func (s *DeleteService) DeleteInstance(ctx context.Context, id models.InstanceIdentifier) error {
	_, err := s.Index.DeleteInstanceIndex(ctx, id, s.cleanupAfter())
	return err
}

// DeleteInstanceNow removes exactly the given version from the index and
// deletes its blobs. Ledger rows whose blobs could not be deleted are left
// to the reaper.
func (s *DeleteService) DeleteInstanceNow(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	entries, err := s.Index.DeleteInstanceIndexByWatermark(ctx, id)
	switch {
	case errors.Is(err, models.ErrInstanceNotFound):
		// the index row is gone but blobs of this version may still exist
		return s.deleteBlobs(ctx, id)
	case err != nil:
		return err
	}

	var firstErr error
	for i := range entries {
		entry := &entries[i]
		if err := s.deleteBlobs(ctx, entry.Identifier()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.Ledger.DeleteDeletedInstance(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *DeleteService) deleteBlobs(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	if err := s.Content.DeleteInstanceFile(ctx, id); err != nil {
		return err
	}
	return s.Content.DeleteInstanceMetadata(ctx, id)
}

// CleanupDeletedInstances processes one batch of due ledger rows and
// returns the number of rows it removed. Failed rows are retried after the
// configured back-off until they reach the retry limit.
func (s *DeleteService) CleanupDeletedInstances(ctx context.Context) (int, error) {
	entries, err := s.Ledger.RetrieveDeletedInstances(ctx, s.Config.BatchSize, s.Config.MaxRetries)
	if err != nil {
		return 0, err
	}

	var cleaned int
	for _, entry := range entries {
		log := s.Logger.WithField("instance", entry.Identifier().String())
		if err := s.deleteBlobs(ctx, entry.Identifier()); err != nil {
			metrics.DeletedInstancesRetried.Inc()
			retries, incErr := s.Ledger.IncrementDeletedInstanceRetry(ctx, entry, s.now().Add(s.Config.RetryBackOff))
			if incErr != nil {
				return cleaned, incErr
			}
			if retries >= s.Config.MaxRetries {
				log.WithError(err).WithField("retries", retries).Error("giving up on deleted instance cleanup")
			} else {
				log.WithError(err).WithField("retries", retries).Warn("deleted instance cleanup failed")
			}
			continue
		}
		if err := s.Ledger.DeleteDeletedInstance(ctx, entry); err != nil {
			return cleaned, err
		}
		metrics.DeletedInstancesCleaned.Inc()
		cleaned++
	}

	if oldest, err := s.Ledger.GetOldestDeletedInstance(ctx); err == nil {
		if oldest.IsZero() {
			metrics.OldestDeletedInstanceSeconds.Set(0)
		} else {
			metrics.OldestDeletedInstanceSeconds.Set(s.now().Sub(oldest).Seconds())
		}
	}
	return cleaned, nil
}

// CleanupStaleCreatingInstances deletes instances that have been Creating
// for longer than olderThan. Their blobs are queued for the reaper.
func (s *DeleteService) CleanupStaleCreatingInstances(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.Index.GetStaleCreatingInstances(ctx, s.now().Add(-olderThan), s.Config.BatchSize)
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, id := range ids {
		_, err := s.Index.DeleteInstanceIndexByWatermark(ctx, id)
		if errors.Is(err, models.ErrInstanceNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		s.Logger.WithField("instance", id.String()).Info("deleted stale creating instance")
		deleted++
	}
	return deleted, nil
}

// Run cleans up on every interval until ctx is done. Each tick drains the
// due ledger rows batch by batch.
func (s *DeleteService) Run(ctx context.Context, staleCreatingAfter time.Duration) error {
	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, staleCreatingAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *DeleteService) runOnce(ctx context.Context, staleCreatingAfter time.Duration) {
	if staleCreatingAfter > 0 {
		if _, err := s.CleanupStaleCreatingInstances(ctx, staleCreatingAfter); err != nil {
			s.Logger.WithError(err).Error("stale creating instance cleanup failed")
		}
	}
	for ctx.Err() == nil {
		cleaned, err := s.CleanupDeletedInstances(ctx)
		if err != nil {
			s.Logger.WithError(err).Error("deleted instance cleanup failed")
			return
		}
		if cleaned < s.Config.BatchSize {
			return
		}
	}
}
