package store

import (
	"context"
	"errors"
	"time"

	"dicom-object-store/metrics"
	"dicom-object-store/models"
	"dicom-object-store/utils"
	"dicom-object-store/validator"

	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/sync/errgroup"
)

// QueryTagProvider returns the registered extended query tags.
type QueryTagProvider interface {
	GetQueryTags(ctx context.Context) ([]models.QueryTag, error)
}

// InstanceStorer stores a single validated entry.
type InstanceStorer interface {
	StoreInstance(ctx context.Context, partitionKey int, entry InstanceEntry, queryTags, dropped []models.QueryTag) (*models.FileProperties, error)
}

// InstanceResult is the outcome of one entry. FailureCode is 0 on success.
type InstanceResult struct {
	Identifier    models.InstanceIdentifier
	SOPClassUID   string
	FailureCode   int
	Err           error
	ElementErrors []validator.ElementError
	Warnings      []validator.Warning
}

// Service processes store requests. Entries are stored independently and
// in parallel; one failing entry never fails the others.
type Service struct {
	Storer         InstanceStorer
	QueryTags      QueryTagProvider
	Options        validator.Options
	MaxParallelism int
	PartitionKey   int
	Logger         logrus.FieldLogger
}

func NewService(storer InstanceStorer, queryTags QueryTagProvider, opts validator.Options, maxParallelism int, logger logrus.FieldLogger) *Service {
	return &Service{
		Storer:         storer,
		QueryTags:      queryTags,
		Options:        opts,
		MaxParallelism: maxParallelism,
		PartitionKey:   models.DefaultPartitionKey,
		Logger:         logger,
	}
}

// Process stores entries and builds the aggregate response. Every entry is
// closed before Process returns. requiredStudyInstanceUID is optional.
func (s *Service) Process(ctx context.Context, entries []InstanceEntry, requiredStudyInstanceUID string) (*Response, error) {
	if len(entries) == 0 {
		return &Response{Status: StatusNoContent}, nil
	}

	queryTags, err := s.QueryTags.GetQueryTags(ctx)
	if err != nil {
		for _, entry := range entries {
			entry.Close()
		}
		return nil, err
	}

	results := make([]InstanceResult, len(entries))
	var g errgroup.Group
	if s.MaxParallelism > 0 {
		g.SetLimit(s.MaxParallelism)
	}
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			defer func() {
				if err := entry.Close(); err != nil {
					s.Logger.WithError(err).Warn("failed to close store entry")
				}
			}()
			results[i] = s.processEntry(ctx, entry, requiredStudyInstanceUID, queryTags)
			return nil
		})
	}
	g.Wait()

	return newResponse(results), nil
}

func (s *Service) processEntry(ctx context.Context, entry InstanceEntry, requiredStudyInstanceUID string, queryTags []models.QueryTag) (result InstanceResult) {
	start := time.Now()
	defer func() {
		metrics.StoreDuration.Observe(time.Since(start).Seconds())
		metrics.StoredInstances.WithLabelValues(outcome(result.FailureCode)).Inc()
	}()

	dataset, err := entry.GetDataset()
	if err != nil {
		s.Logger.WithError(err).Warn("failed to read store entry")
		return InstanceResult{FailureCode: FailureCodeProcessingFailure, Err: err}
	}

	result.Identifier = utils.GetInstanceIdentifier(dataset, s.PartitionKey)
	result.SOPClassUID, _ = utils.GetFirstString(dataset, tag.SOPClassUID)
	log := s.Logger.WithField("instance", result.Identifier.String())

	validation := validator.Validate(dataset, requiredStudyInstanceUID, queryTags, s.Options)
	result.ElementErrors = validation.ElementErrors
	result.Warnings = validation.Warnings
	if !validation.Valid() {
		result.Err = validation.Err
		result.FailureCode = FailureCodeValidationFailure
		if errors.Is(validation.Err, validator.ErrStudyInstanceUIDMismatch) {
			result.FailureCode = FailureCodeMismatchStudyInstanceUID
		}
		log.WithError(validation.Err).Info("instance failed validation")
		return result
	}

	_, err = s.Storer.StoreInstance(ctx, s.PartitionKey, entry, queryTags, validation.DroppedQueryTags)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInstanceAlreadyExists):
		result.Err = err
		result.FailureCode = FailureCodeSOPInstanceAlreadyExists
		log.Info("instance already exists")
	default:
		result.Err = err
		result.FailureCode = FailureCodeProcessingFailure
		log.WithError(err).Error("failed to store instance")
	}
	return result
}

func outcome(code int) string {
	switch code {
	case 0:
		return "success"
	case FailureCodeSOPInstanceAlreadyExists:
		return "already_exists"
	case FailureCodeValidationFailure, FailureCodeMismatchStudyInstanceUID:
		return "validation_failed"
	default:
		return "failed"
	}
}
