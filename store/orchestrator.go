package store

import (
	"context"
	"fmt"
	"io"

	"dicom-object-store/metrics"
	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
	"golang.org/x/sync/errgroup"
)

type IndexStore interface {
	BeginCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, queryTags []models.QueryTag) (int64, error)
	EndCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag, fileProperties *models.FileProperties) error
}

type ContentStore interface {
	StoreInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier, r io.Reader) (*models.FileProperties, error)
	StoreInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier, dataset dicom.Dataset) error
}

// InstanceDeleter removes one version of an instance right away.
type InstanceDeleter interface {
	DeleteInstanceNow(ctx context.Context, id models.VersionedInstanceIdentifier) error
}

// Orchestrator stores a single instance: Begin, content writes, End. Once
// Begin succeeded every failure is compensated by deleting that version.
type Orchestrator struct {
	Index   IndexStore
	Content ContentStore
	Deleter InstanceDeleter
	Logger  logrus.FieldLogger
}

func NewOrchestrator(index IndexStore, content ContentStore, deleter InstanceDeleter, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		Index:   index,
		Content: content,
		Deleter: deleter,
		Logger:  logger,
	}
}

// StoreInstance stores entry. queryTags is the snapshot of every registered
// extended query tag; dropped lists the tags whose values are not indexed
// for this entry.
func (o *Orchestrator) StoreInstance(ctx context.Context, partitionKey int, entry InstanceEntry, queryTags, dropped []models.QueryTag) (*models.FileProperties, error) {
	dataset, err := entry.GetDataset()
	if err != nil {
		return nil, err
	}

	watermark, err := o.Index.BeginCreateInstanceIndex(ctx, partitionKey, dataset, withoutQueryTags(queryTags, dropped))
	if err != nil {
		return nil, err
	}

	id := models.VersionedInstanceIdentifier{
		InstanceIdentifier: utils.GetInstanceIdentifier(dataset, partitionKey),
		Version:            watermark,
	}

	fileProperties, err := o.storeContent(ctx, id, entry, dataset)
	if err != nil {
		o.compensate(ctx, id, "content")
		return nil, err
	}

	if err := o.Index.EndCreateInstanceIndex(ctx, partitionKey, dataset, watermark, queryTags, fileProperties); err != nil {
		o.compensate(ctx, id, "end")
		return nil, err
	}
	return fileProperties, nil
}

func (o *Orchestrator) storeContent(ctx context.Context, id models.VersionedInstanceIdentifier, entry InstanceEntry, dataset dicom.Dataset) (*models.FileProperties, error) {
	var fileProperties *models.FileProperties
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stream, err := entry.GetStream()
		if err != nil {
			return err
		}
		fp, err := o.Content.StoreInstanceFile(gctx, id, stream)
		if err != nil {
			return fmt.Errorf("store instance file: %w", err)
		}
		fileProperties = fp
		return nil
	})
	g.Go(func() error {
		if err := o.Content.StoreInstanceMetadata(gctx, id, dataset); err != nil {
			return fmt.Errorf("store instance metadata: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fileProperties, nil
}

// compensate deletes the version written so far. It runs even when the
// request was cancelled and never fails the caller.
func (o *Orchestrator) compensate(ctx context.Context, id models.VersionedInstanceIdentifier, stage string) {
	if err := o.Deleter.DeleteInstanceNow(context.WithoutCancel(ctx), id); err != nil {
		metrics.CleanupFailures.WithLabelValues(stage).Inc()
		o.Logger.WithError(err).
			WithField("instance", id.String()).
			WithField("stage", stage).
			Error("failed to clean up instance after store failure")
	}
}

func withoutQueryTags(tags, dropped []models.QueryTag) []models.QueryTag {
	if len(dropped) == 0 {
		return tags
	}
	skip := make(map[string]bool, len(dropped))
	for _, t := range dropped {
		skip[t.Path] = true
	}
	kept := make([]models.QueryTag, 0, len(tags))
	for _, t := range tags {
		if !skip[t.Path] {
			kept = append(kept, t)
		}
	}
	return kept
}
