package querytag

import (
	"context"
	"errors"
	"fmt"

	"dicom-object-store/metrics"
	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
)

type InstanceIndex interface {
	GetMaxInstanceWatermark(ctx context.Context) (int64, error)
	GetInstanceBatches(ctx context.Context, batchSize, batchCount int, status models.InstanceStatus, maxWatermark int64) ([]models.WatermarkRange, error)
	GetInstanceIdentifiersByWatermarkRange(ctx context.Context, r models.WatermarkRange, status models.InstanceStatus) ([]models.VersionedInstanceIdentifier, error)
	ReindexInstance(ctx context.Context, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag) error
}

type MetadataStore interface {
	GetInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) (dicom.Dataset, error)
}

// Reindexer writes the values of newly added tags for instances stored
// before the tags existed.
type Reindexer struct {
	Tags       Store
	Index      InstanceIndex
	Metadata   MetadataStore
	BatchSize  int
	BatchCount int
	Logger     logrus.FieldLogger

	newOperationID func() string
}

func NewReindexer(tags Store, index InstanceIndex, metadata MetadataStore, batchSize, batchCount int, logger logrus.FieldLogger) *Reindexer {
	return &Reindexer{
		Tags:           tags,
		Index:          index,
		Metadata:       metadata,
		BatchSize:      batchSize,
		BatchCount:     batchCount,
		Logger:         logger,
		newOperationID: uuid.NewString,
	}
}

// Run assigns every unclaimed Adding tag to a new operation, reindexes all
// Created instances and marks the tags Ready. It returns the operation id,
// or "" when there was nothing to do.
func (r *Reindexer) Run(ctx context.Context) (string, error) {
	tags, err := r.Tags.GetExtendedQueryTags(ctx, nil)
	if err != nil {
		return "", err
	}
	var keys []int
	for _, t := range tags {
		if t.TagStatus == models.ExtendedQueryTagStatusAdding && t.OperationID == nil {
			keys = append(keys, t.TagKey)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}

	operationID := r.newOperationID()
	assigned, err := r.Tags.AssignReindexingOperation(ctx, keys, operationID)
	if err != nil {
		return "", err
	}
	if len(assigned) == 0 {
		return "", nil
	}
	log := r.Logger.WithField("operation", operationID)
	log.WithField("tags", len(assigned)).Info("reindex started")

	if err := r.Resume(ctx, operationID); err != nil {
		return operationID, err
	}
	return operationID, nil
}

// Resume reindexes the tags of an existing operation. Instances may be
// processed again; values written by newer versions are kept.
func (r *Reindexer) Resume(ctx context.Context, operationID string) error {
	tags, err := r.Tags.GetExtendedQueryTagsByOperation(ctx, operationID)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return fmt.Errorf("operation %s has no tags", operationID)
	}
	queryTags, err := toQueryTags(tags)
	if err != nil {
		return err
	}
	log := r.Logger.WithField("operation", operationID)

	maxWatermark, err := r.Index.GetMaxInstanceWatermark(ctx)
	if err != nil {
		return err
	}

	errorCounts := make(map[int]int)
	var reindexed int
	for maxWatermark > 0 {
		batches, err := r.Index.GetInstanceBatches(ctx, r.BatchSize, r.BatchCount, models.InstanceStatusCreated, maxWatermark)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			break
		}
		for _, batch := range batches {
			n, err := r.reindexRange(ctx, batch, queryTags, errorCounts)
			reindexed += n
			if err != nil {
				return err
			}
		}
		maxWatermark = batches[len(batches)-1].Start - 1
	}

	for key, count := range errorCounts {
		if err := r.Tags.IncrementErrorCount(ctx, key, count); err != nil {
			return err
		}
	}

	if _, err := r.Tags.CompleteReindexing(ctx, operationID); err != nil {
		return err
	}
	log.WithField("instances", reindexed).Info("reindex completed")
	return nil
}

func (r *Reindexer) reindexRange(ctx context.Context, batch models.WatermarkRange, queryTags []models.QueryTag, errorCounts map[int]int) (int, error) {
	ids, err := r.Index.GetInstanceIdentifiersByWatermarkRange(ctx, batch, models.InstanceStatusCreated)
	if err != nil {
		return 0, err
	}

	var reindexed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reindexed, err
		}
		dataset, err := r.Metadata.GetInstanceMetadata(ctx, id)
		if errors.Is(err, models.ErrContentNotFound) {
			r.Logger.WithField("instance", id.String()).Warn("metadata missing, instance skipped")
			continue
		}
		if err != nil {
			return reindexed, err
		}

		_, invalid := utils.GetQueryTagValues(dataset, queryTags)
		for _, t := range invalid {
			errorCounts[t.ExtendedQueryTagKey]++
		}

		err = r.Index.ReindexInstance(ctx, dataset, id.Version, queryTags)
		if errors.Is(err, models.ErrInstanceNotFound) || errors.Is(err, models.ErrPendingInstance) {
			continue
		}
		if err != nil {
			return reindexed, err
		}
		metrics.ReindexedInstances.Inc()
		reindexed++
	}
	return reindexed, nil
}
