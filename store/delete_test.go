package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"dicom-object-store/config"
	"dicom-object-store/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type deleteFixture struct {
	index   *mockIndex
	ledger  *mockLedger
	content *mockContent
	s       *DeleteService
}

func newDeleteFixture() *deleteFixture {
	logger, _ := test.NewNullLogger()
	f := &deleteFixture{
		index:   &mockIndex{},
		ledger:  &mockLedger{},
		content: &mockContent{},
	}
	f.s = NewDeleteService(f.index, f.ledger, f.content, config.DeleteConfig{
		Delay:        5 * time.Minute,
		MaxRetries:   3,
		RetryBackOff: time.Minute,
		BatchSize:    10,
		Interval:     time.Minute,
	}, logger)
	f.s.now = func() time.Time { return testNow }
	return f
}

func ledgerEntry(id models.VersionedInstanceIdentifier) models.DeletedInstance {
	return models.DeletedInstance{
		PartitionKey:      id.PartitionKey,
		StudyInstanceUID:  id.StudyInstanceUID,
		SeriesInstanceUID: id.SeriesInstanceUID,
		SOPInstanceUID:    id.SOPInstanceUID,
		Watermark:         id.Version,
	}
}

func TestDeleteUsesConfiguredDelay(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	cleanupAfter := testNow.Add(5 * time.Minute)

	f.index.On("DeleteStudyIndex", ctx, 1, "1.1", cleanupAfter).Return(nil, nil)
	f.index.On("DeleteSeriesIndex", ctx, 1, "1.1", "1.1.1", cleanupAfter).Return(nil, nil)
	f.index.On("DeleteInstanceIndex", ctx, testIdentifier("1.1", "1.1.1", "1.1.1.1", 0).InstanceIdentifier, cleanupAfter).Return(nil, models.ErrInstanceNotFound)

	require.NoError(t, f.s.DeleteStudy(ctx, 1, "1.1"))
	require.NoError(t, f.s.DeleteSeries(ctx, 1, "1.1", "1.1.1"))
	assert.ErrorIs(t, f.s.DeleteInstance(ctx, testIdentifier("1.1", "1.1.1", "1.1.1.1", 0).InstanceIdentifier), models.ErrInstanceNotFound)
	f.index.AssertExpectations(t)
}

func TestDeleteInstanceNow(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	id := testIdentifier("1.1", "1.1.1", "1.1.1.1", 8)
	entry := ledgerEntry(id)

	f.index.On("DeleteInstanceIndexByWatermark", ctx, id).Return([]models.DeletedInstance{entry}, nil)
	f.content.On("DeleteInstanceFile", ctx, id).Return(nil)
	f.content.On("DeleteInstanceMetadata", ctx, id).Return(nil)
	f.ledger.On("DeleteDeletedInstance", ctx, &entry).Return(nil)

	require.NoError(t, f.s.DeleteInstanceNow(ctx, id))
	f.index.AssertExpectations(t)
	f.content.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestDeleteInstanceNowLeavesLedgerOnBlobFailure(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	id := testIdentifier("1.1", "1.1.1", "1.1.1.1", 8)

	f.index.On("DeleteInstanceIndexByWatermark", ctx, id).Return([]models.DeletedInstance{ledgerEntry(id)}, nil)
	f.content.On("DeleteInstanceFile", ctx, id).Return(errors.New("unavailable"))

	assert.Error(t, f.s.DeleteInstanceNow(ctx, id))
	f.ledger.AssertNotCalled(t, "DeleteDeletedInstance", mock.Anything, mock.Anything)
}

func TestDeleteInstanceNowWithoutIndexRow(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	id := testIdentifier("1.1", "1.1.1", "1.1.1.1", 8)

	f.index.On("DeleteInstanceIndexByWatermark", ctx, id).Return(nil, models.ErrInstanceNotFound)
	f.content.On("DeleteInstanceFile", ctx, id).Return(nil)
	f.content.On("DeleteInstanceMetadata", ctx, id).Return(nil)

	require.NoError(t, f.s.DeleteInstanceNow(ctx, id))
	f.content.AssertExpectations(t)
}

func TestCleanupDeletedInstances(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	ok := ledgerEntry(testIdentifier("1.1", "1.1.1", "1.1.1.1", 1))
	failing := ledgerEntry(testIdentifier("1.1", "1.1.1", "1.1.1.2", 2))

	f.ledger.On("RetrieveDeletedInstances", ctx, 10, 3).Return([]*models.DeletedInstance{&ok, &failing}, nil)
	f.content.On("DeleteInstanceFile", ctx, ok.Identifier()).Return(nil)
	f.content.On("DeleteInstanceMetadata", ctx, ok.Identifier()).Return(nil)
	f.ledger.On("DeleteDeletedInstance", ctx, &ok).Return(nil)
	f.content.On("DeleteInstanceFile", ctx, failing.Identifier()).Return(errors.New("unavailable"))
	f.ledger.On("IncrementDeletedInstanceRetry", ctx, &failing, testNow.Add(time.Minute)).Return(1, nil)
	f.ledger.On("GetOldestDeletedInstance", ctx).Return(testNow.Add(-time.Hour), nil)

	cleaned, err := f.s.CleanupDeletedInstances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)
	f.ledger.AssertExpectations(t)
	f.ledger.AssertNotCalled(t, "DeleteDeletedInstance", ctx, &failing)
}

func TestCleanupStaleCreatingInstances(t *testing.T) {
	f := newDeleteFixture()
	ctx := context.Background()
	stale := testIdentifier("1.1", "1.1.1", "1.1.1.1", 3)
	gone := testIdentifier("1.1", "1.1.1", "1.1.1.2", 4)

	f.index.On("GetStaleCreatingInstances", ctx, testNow.Add(-time.Hour), 10).Return([]models.VersionedInstanceIdentifier{stale, gone}, nil)
	f.index.On("DeleteInstanceIndexByWatermark", ctx, stale).Return([]models.DeletedInstance{ledgerEntry(stale)}, nil)
	f.index.On("DeleteInstanceIndexByWatermark", ctx, gone).Return(nil, models.ErrInstanceNotFound)

	deleted, err := f.s.CleanupStaleCreatingInstances(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	f.index.AssertExpectations(t)
	f.content.AssertNotCalled(t, "DeleteInstanceFile", mock.Anything, mock.Anything)
}
