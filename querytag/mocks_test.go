package querytag

import (
	"context"

	"dicom-object-store/database"
	"dicom-object-store/models"

	"github.com/stretchr/testify/mock"
	"github.com/suyashkumar/dicom"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AddExtendedQueryTags(ctx context.Context, tags []*models.ExtendedQueryTag, maxAllowedCount int) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, tags, maxAllowedCount)
	added, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return added, args.Error(1)
}

func (m *mockStore) GetExtendedQueryTags(ctx context.Context, opts *database.SelectQueryOptions) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, opts)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockStore) GetExtendedQueryTag(ctx context.Context, path string) (*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, path)
	t, _ := args.Get(0).(*models.ExtendedQueryTag)
	return t, args.Error(1)
}

func (m *mockStore) GetExtendedQueryTagsByOperation(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, operationID)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockStore) AssignReindexingOperation(ctx context.Context, tagKeys []int, operationID string) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, tagKeys, operationID)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockStore) CompleteReindexing(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, operationID)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockStore) UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, path, status)
	t, _ := args.Get(0).(*models.ExtendedQueryTag)
	return t, args.Error(1)
}

func (m *mockStore) IncrementErrorCount(ctx context.Context, tagKey, delta int) error {
	return m.Called(ctx, tagKey, delta).Error(0)
}

func (m *mockStore) DeleteExtendedQueryTag(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) GetMaxInstanceWatermark(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockIndex) GetInstanceBatches(ctx context.Context, batchSize, batchCount int, status models.InstanceStatus, maxWatermark int64) ([]models.WatermarkRange, error) {
	args := m.Called(ctx, batchSize, batchCount, status, maxWatermark)
	ranges, _ := args.Get(0).([]models.WatermarkRange)
	return ranges, args.Error(1)
}

func (m *mockIndex) GetInstanceIdentifiersByWatermarkRange(ctx context.Context, r models.WatermarkRange, status models.InstanceStatus) ([]models.VersionedInstanceIdentifier, error) {
	args := m.Called(ctx, r, status)
	ids, _ := args.Get(0).([]models.VersionedInstanceIdentifier)
	return ids, args.Error(1)
}

func (m *mockIndex) ReindexInstance(ctx context.Context, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag) error {
	return m.Called(ctx, dataset, watermark, queryTags).Error(0)
}

type mockMetadata struct {
	mock.Mock
}

func (m *mockMetadata) GetInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) (dicom.Dataset, error) {
	args := m.Called(ctx, id)
	ds, _ := args.Get(0).(dicom.Dataset)
	return ds, args.Error(1)
}
