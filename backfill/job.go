// Package backfill fills in the content length of file properties that
// were recorded before lengths were tracked.
package backfill

import (
	"context"
	"errors"

	"dicom-object-store/metrics"
	"dicom-object-store/models"

	"github.com/sirupsen/logrus"
)

type IndexStore interface {
	GetContentLengthBackFillInstanceBatches(ctx context.Context, batchSize, batchCount int) ([]models.WatermarkRange, error)
	GetContentLengthBackFillInstanceIdentifiersByWatermarkRange(ctx context.Context, r models.WatermarkRange) ([]models.VersionedInstanceIdentifier, error)
	UpdateFilePropertiesContentLength(ctx context.Context, lengths map[int64]int64) error
}

type ContentStore interface {
	GetInstanceFileProperties(ctx context.Context, id models.VersionedInstanceIdentifier) (*models.FileProperties, error)
}

type Job struct {
	Index      IndexStore
	Content    ContentStore
	BatchSize  int
	BatchCount int
	Logger     logrus.FieldLogger
}

func NewJob(index IndexStore, content ContentStore, batchSize, batchCount int, logger logrus.FieldLogger) *Job {
	return &Job{
		Index:      index,
		Content:    content,
		BatchSize:  batchSize,
		BatchCount: batchCount,
		Logger:     logger,
	}
}

// Run backfills until no unknown lengths are left or ctx is done. Blobs
// that are missing are skipped and logged. It returns the number of rows
// updated.
func (j *Job) Run(ctx context.Context) (int, error) {
	skipped := make(map[int64]bool)
	var updated int
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		batches, err := j.Index.GetContentLengthBackFillInstanceBatches(ctx, j.BatchSize, j.BatchCount)
		if err != nil {
			return updated, err
		}

		var progressed bool
		for _, batch := range batches {
			n, err := j.backfillRange(ctx, batch, skipped)
			updated += n
			if err != nil {
				return updated, err
			}
			if n > 0 {
				progressed = true
			}
		}
		if len(batches) == 0 || !progressed {
			j.Logger.WithField("updated", updated).WithField("skipped", len(skipped)).Info("content length backfill completed")
			return updated, nil
		}
	}
}

func (j *Job) backfillRange(ctx context.Context, batch models.WatermarkRange, skipped map[int64]bool) (int, error) {
	ids, err := j.Index.GetContentLengthBackFillInstanceIdentifiersByWatermarkRange(ctx, batch)
	if err != nil {
		return 0, err
	}

	lengths := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if skipped[id.Version] {
			continue
		}
		fp, err := j.Content.GetInstanceFileProperties(ctx, id)
		if errors.Is(err, models.ErrContentNotFound) {
			j.Logger.WithField("instance", id.String()).Warn("instance file missing, content length not backfilled")
			skipped[id.Version] = true
			continue
		}
		if err != nil {
			return 0, err
		}
		if fp.ContentLength == 0 {
			skipped[id.Version] = true
			continue
		}
		lengths[id.Version] = fp.ContentLength
	}

	if err := j.Index.UpdateFilePropertiesContentLength(ctx, lengths); err != nil {
		return 0, err
	}
	metrics.BackfilledInstances.Add(float64(len(lengths)))
	return len(lengths), nil
}
