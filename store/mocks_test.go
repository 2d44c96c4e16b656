package store

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"dicom-object-store/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func mustElement(t *testing.T, tg tag.Tag, data interface{}) *dicom.Element {
	t.Helper()
	element, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return element
}

func testDataset(t *testing.T, study, series, sop string) dicom.Dataset {
	return dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.PatientID, []string{"PID"}),
		mustElement(t, tag.StudyInstanceUID, []string{study}),
		mustElement(t, tag.SeriesInstanceUID, []string{series}),
		mustElement(t, tag.SOPInstanceUID, []string{sop}),
		mustElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
	}}
}

func testIdentifier(study, series, sop string, version int64) models.VersionedInstanceIdentifier {
	return models.VersionedInstanceIdentifier{
		InstanceIdentifier: models.InstanceIdentifier{
			PartitionKey:      models.DefaultPartitionKey,
			StudyInstanceUID:  study,
			SeriesInstanceUID: series,
			SOPInstanceUID:    sop,
		},
		Version: version,
	}
}

type fakeEntry struct {
	dataset dicom.Dataset
	err     error
	data    []byte
	closed  bool
}

func (e *fakeEntry) GetDataset() (dicom.Dataset, error) {
	return e.dataset, e.err
}

func (e *fakeEntry) GetStream() (io.Reader, error) {
	return bytes.NewReader(e.data), nil
}

func (e *fakeEntry) Close() error {
	e.closed = true
	return nil
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) BeginCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, queryTags []models.QueryTag) (int64, error) {
	args := m.Called(ctx, partitionKey, dataset, queryTags)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockIndex) EndCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag, fileProperties *models.FileProperties) error {
	args := m.Called(ctx, partitionKey, dataset, watermark, queryTags, fileProperties)
	return args.Error(0)
}

func (m *mockIndex) DeleteInstanceIndex(ctx context.Context, id models.InstanceIdentifier, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	args := m.Called(ctx, id, cleanupAfter)
	entries, _ := args.Get(0).([]models.DeletedInstance)
	return entries, args.Error(1)
}

func (m *mockIndex) DeleteSeriesIndex(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	args := m.Called(ctx, partitionKey, studyInstanceUID, seriesInstanceUID, cleanupAfter)
	entries, _ := args.Get(0).([]models.DeletedInstance)
	return entries, args.Error(1)
}

func (m *mockIndex) DeleteStudyIndex(ctx context.Context, partitionKey int, studyInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	args := m.Called(ctx, partitionKey, studyInstanceUID, cleanupAfter)
	entries, _ := args.Get(0).([]models.DeletedInstance)
	return entries, args.Error(1)
}

func (m *mockIndex) DeleteInstanceIndexByWatermark(ctx context.Context, id models.VersionedInstanceIdentifier) ([]models.DeletedInstance, error) {
	args := m.Called(ctx, id)
	entries, _ := args.Get(0).([]models.DeletedInstance)
	return entries, args.Error(1)
}

func (m *mockIndex) GetStaleCreatingInstances(ctx context.Context, olderThan time.Time, limit int) ([]models.VersionedInstanceIdentifier, error) {
	args := m.Called(ctx, olderThan, limit)
	ids, _ := args.Get(0).([]models.VersionedInstanceIdentifier)
	return ids, args.Error(1)
}

type mockContent struct {
	mock.Mock
}

func (m *mockContent) StoreInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier, r io.Reader) (*models.FileProperties, error) {
	args := m.Called(ctx, id, r)
	fp, _ := args.Get(0).(*models.FileProperties)
	return fp, args.Error(1)
}

func (m *mockContent) StoreInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier, dataset dicom.Dataset) error {
	return m.Called(ctx, id, dataset).Error(0)
}

func (m *mockContent) DeleteInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockContent) DeleteInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	return m.Called(ctx, id).Error(0)
}

type mockDeleter struct {
	mock.Mock
}

func (m *mockDeleter) DeleteInstanceNow(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	return m.Called(ctx, id).Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RetrieveDeletedInstances(ctx context.Context, batchSize, maxRetries int) ([]*models.DeletedInstance, error) {
	args := m.Called(ctx, batchSize, maxRetries)
	entries, _ := args.Get(0).([]*models.DeletedInstance)
	return entries, args.Error(1)
}

func (m *mockLedger) DeleteDeletedInstance(ctx context.Context, entry *models.DeletedInstance) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockLedger) IncrementDeletedInstanceRetry(ctx context.Context, entry *models.DeletedInstance, cleanupAfter time.Time) (int, error) {
	args := m.Called(ctx, entry, cleanupAfter)
	return args.Int(0), args.Error(1)
}

func (m *mockLedger) GetOldestDeletedInstance(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

type mockStorer struct {
	mock.Mock
}

func (m *mockStorer) StoreInstance(ctx context.Context, partitionKey int, entry InstanceEntry, queryTags, dropped []models.QueryTag) (*models.FileProperties, error) {
	args := m.Called(ctx, partitionKey, entry, queryTags, dropped)
	fp, _ := args.Get(0).(*models.FileProperties)
	return fp, args.Error(1)
}

type mockQueryTags struct {
	mock.Mock
}

func (m *mockQueryTags) GetQueryTags(ctx context.Context) ([]models.QueryTag, error) {
	args := m.Called(ctx)
	tags, _ := args.Get(0).([]models.QueryTag)
	return tags, args.Error(1)
}
