package dicomweb

import (
	"bytes"
	"context"
	"io"

	"dicom-object-store/models"
	"dicom-object-store/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
)

type mockStoreService struct {
	mock.Mock
	sizes []int64
}

func (m *mockStoreService) Process(ctx context.Context, entries []store.InstanceEntry, requiredStudyInstanceUID string) (*store.Response, error) {
	for _, e := range entries {
		if fe, ok := e.(*store.FileEntry); ok {
			m.sizes = append(m.sizes, fe.Size())
		}
		e.Close()
	}
	args := m.Called(ctx, len(entries), requiredStudyInstanceUID)
	resp, _ := args.Get(0).(*store.Response)
	return resp, args.Error(1)
}

type mockDeleteService struct {
	mock.Mock
}

func (m *mockDeleteService) DeleteStudy(ctx context.Context, partitionKey int, studyInstanceUID string) error {
	return m.Called(ctx, partitionKey, studyInstanceUID).Error(0)
}

func (m *mockDeleteService) DeleteSeries(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string) error {
	return m.Called(ctx, partitionKey, studyInstanceUID, seriesInstanceUID).Error(0)
}

func (m *mockDeleteService) DeleteInstance(ctx context.Context, id models.InstanceIdentifier) error {
	return m.Called(ctx, id).Error(0)
}

type mockChangeFeed struct {
	mock.Mock
}

func (m *mockChangeFeed) GetChangeFeed(ctx context.Context, window models.TimeRange, offset int64, limit int, order models.ChangeFeedOrder) ([]*models.ChangeFeedEntry, error) {
	args := m.Called(ctx, window, offset, limit, order)
	entries, _ := args.Get(0).([]*models.ChangeFeedEntry)
	return entries, args.Error(1)
}

func (m *mockChangeFeed) GetChangeFeedLatest(ctx context.Context, order models.ChangeFeedOrder) (*models.ChangeFeedEntry, error) {
	args := m.Called(ctx, order)
	entry, _ := args.Get(0).(*models.ChangeFeedEntry)
	return entry, args.Error(1)
}

type mockQueryTags struct {
	mock.Mock
}

func (m *mockQueryTags) Add(ctx context.Context, entries []models.AddExtendedQueryTagEntry) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, entries)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockQueryTags) Get(ctx context.Context, path string) (*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, path)
	t, _ := args.Get(0).(*models.ExtendedQueryTag)
	return t, args.Error(1)
}

func (m *mockQueryTags) List(ctx context.Context, limit, offset int) ([]*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, limit, offset)
	tags, _ := args.Get(0).([]*models.ExtendedQueryTag)
	return tags, args.Error(1)
}

func (m *mockQueryTags) UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error) {
	args := m.Called(ctx, path, status)
	t, _ := args.Get(0).(*models.ExtendedQueryTag)
	return t, args.Error(1)
}

func (m *mockQueryTags) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

type mockReindexer struct {
	mock.Mock
	done chan struct{}
}

func (m *mockReindexer) Run(ctx context.Context) (string, error) {
	defer close(m.done)
	args := m.Called()
	return args.String(0), args.Error(1)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) GetInstanceIdentifiers(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID, sopInstanceUID string) ([]models.VersionedInstanceIdentifier, error) {
	args := m.Called(ctx, partitionKey, studyInstanceUID, seriesInstanceUID, sopInstanceUID)
	ids, _ := args.Get(0).([]models.VersionedInstanceIdentifier)
	return ids, args.Error(1)
}

type mockContent struct {
	mock.Mock
}

func (m *mockContent) GetInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(args.Get(0).([]byte))), nil
}

func (m *mockContent) GetInstanceMetadataJSON(ctx context.Context, id models.VersionedInstanceIdentifier) ([]byte, error) {
	args := m.Called(ctx, id)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type testAPI struct {
	store      *mockStoreService
	delete     *mockDeleteService
	changeFeed *mockChangeFeed
	queryTags  *mockQueryTags
	index      *mockIndex
	content    *mockContent
	router     *chi.Mux
}

func newTestAPI() *testAPI {
	t := &testAPI{
		store:      &mockStoreService{},
		delete:     &mockDeleteService{},
		changeFeed: &mockChangeFeed{},
		queryTags:  &mockQueryTags{},
		index:      &mockIndex{},
		content:    &mockContent{},
	}
	t.router = NewAPI(Services{
		Store:          t.store,
		Delete:         t.delete,
		ChangeFeed:     t.changeFeed,
		QueryTags:      t.queryTags,
		Index:          t.index,
		Content:        t.content,
		MaxRequestSize: 1 << 20,
	}).Router()
	return t
}

func versionedID(study, series, sop string, version int64) models.VersionedInstanceIdentifier {
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
