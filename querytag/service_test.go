package querytag

import (
	"context"
	"testing"

	"dicom-object-store/database"
	"dicom-object-store/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(store Store) *Service {
	logger, _ := test.NewNullLogger()
	return NewService(store, 16, logger)
}

func TestNormalize(t *testing.T) {
	creator := "ACME 1.0"
	tests := []struct {
		name    string
		entry   models.AddExtendedQueryTagEntry
		want    *models.ExtendedQueryTag
		wantErr bool
	}{
		{
			name:  "keyword resolves vr",
			entry: models.AddExtendedQueryTagEntry{Path: "Modality", Level: "Series"},
			want:  &models.ExtendedQueryTag{TagPath: "00080060", TagVR: "CS", TagLevel: models.QueryTagLevelSeries},
		},
		{
			name:  "hex code with vr",
			entry: models.AddExtendedQueryTagEntry{Path: "00100030", VR: "da", Level: "study"},
			want:  &models.ExtendedQueryTag{TagPath: "00100030", TagVR: "DA", TagLevel: models.QueryTagLevelStudy},
		},
		{
			name:  "private tag",
			entry: models.AddExtendedQueryTagEntry{Path: "00091001", VR: "LO", PrivateCreator: creator, Level: "Instance"},
			want:  &models.ExtendedQueryTag{TagPath: "00091001", TagVR: "LO", TagPrivateCreator: &creator, TagLevel: models.QueryTagLevelInstance},
		},
		{name: "unknown keyword", entry: models.AddExtendedQueryTagEntry{Path: "NotATag", Level: "Study"}, wantErr: true},
		{name: "core tag", entry: models.AddExtendedQueryTagEntry{Path: "StudyInstanceUID", Level: "Study"}, wantErr: true},
		{name: "vr mismatch", entry: models.AddExtendedQueryTagEntry{Path: "Modality", VR: "DA", Level: "Series"}, wantErr: true},
		{name: "unsupported vr", entry: models.AddExtendedQueryTagEntry{Path: "PixelData", Level: "Instance"}, wantErr: true},
		{name: "missing level", entry: models.AddExtendedQueryTagEntry{Path: "Modality"}, wantErr: true},
		{name: "private without creator", entry: models.AddExtendedQueryTagEntry{Path: "00091001", VR: "LO", Level: "Study"}, wantErr: true},
		{name: "private without vr", entry: models.AddExtendedQueryTagEntry{Path: "00091001", PrivateCreator: creator, Level: "Study"}, wantErr: true},
		{name: "private creator element", entry: models.AddExtendedQueryTagEntry{Path: "00090010", VR: "LO", PrivateCreator: creator, Level: "Study"}, wantErr: true},
		{name: "standard tag with creator", entry: models.AddExtendedQueryTagEntry{Path: "Modality", PrivateCreator: creator, Level: "Series"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalize(tt.entry)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQueryTag)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdd(t *testing.T) {
	store := &mockStore{}
	ctx := context.Background()
	added := []*models.ExtendedQueryTag{{TagKey: 1, TagPath: "00080060", TagVR: "CS", TagLevel: models.QueryTagLevelSeries}}
	store.On("AddExtendedQueryTags", ctx, mock.MatchedBy(func(tags []*models.ExtendedQueryTag) bool {
		return len(tags) == 1 && tags[0].TagPath == "00080060"
	}), 16).Return(added, nil)

	got, err := newTestService(store).Add(ctx, []models.AddExtendedQueryTagEntry{{Path: "Modality", Level: "Series"}})
	require.NoError(t, err)
	assert.Equal(t, added, got)
	store.AssertExpectations(t)
}

func TestAddRejectsRequest(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.AddExtendedQueryTagEntry
	}{
		{name: "empty", entries: nil},
		{name: "duplicate", entries: []models.AddExtendedQueryTagEntry{
			{Path: "Modality", Level: "Series"},
			{Path: "00080060", Level: "Series"},
		}},
		{name: "one invalid", entries: []models.AddExtendedQueryTagEntry{
			{Path: "Modality", Level: "Series"},
			{Path: "NotATag", Level: "Series"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			_, err := newTestService(store).Add(context.Background(), tt.entries)
			assert.ErrorIs(t, err, ErrInvalidQueryTag)
			store.AssertNotCalled(t, "AddExtendedQueryTags", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAddPassesStoreErrors(t *testing.T) {
	store := &mockStore{}
	store.On("AddExtendedQueryTags", mock.Anything, mock.Anything, 16).Return(nil, models.ErrTagsExceedMaxAllowedCount)

	_, err := newTestService(store).Add(context.Background(), []models.AddExtendedQueryTagEntry{{Path: "Modality", Level: "Series"}})
	assert.ErrorIs(t, err, models.ErrTagsExceedMaxAllowedCount)
}

func TestDeleteNormalizesPath(t *testing.T) {
	store := &mockStore{}
	ctx := context.Background()
	store.On("DeleteExtendedQueryTag", ctx, "00080060").Return(models.ErrTagBusy)

	err := newTestService(store).Delete(ctx, "Modality")
	assert.ErrorIs(t, err, models.ErrTagBusy)
	store.AssertExpectations(t)
}

func TestUpdateQueryStatus(t *testing.T) {
	store := &mockStore{}
	ctx := context.Background()
	updated := &models.ExtendedQueryTag{TagPath: "00080060", QueryStatus: models.QueryStatusDisabled}
	store.On("UpdateQueryStatus", ctx, "00080060", models.QueryStatusDisabled).Return(updated, nil)

	got, err := newTestService(store).UpdateQueryStatus(ctx, "00080060", models.QueryStatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestList(t *testing.T) {
	store := &mockStore{}
	ctx := context.Background()
	store.On("GetExtendedQueryTags", ctx, &database.SelectQueryOptions{Limit: 10, Offset: 20, OrderBy: "tag_key"}).Return(nil, nil)

	tags, err := newTestService(store).List(ctx, 10, 20)
	require.NoError(t, err)
	assert.NotNil(t, tags)
	assert.Empty(t, tags)
}

func TestGetQueryTags(t *testing.T) {
	store := &mockStore{}
	ctx := context.Background()
	store.On("GetExtendedQueryTags", ctx, (*database.SelectQueryOptions)(nil)).Return([]*models.ExtendedQueryTag{
		{TagKey: 3, TagPath: "00080060", TagVR: "CS", TagLevel: models.QueryTagLevelSeries, TagStatus: models.ExtendedQueryTagStatusAdding},
		{TagKey: 4, TagPath: "00100030", TagVR: "DA", TagLevel: models.QueryTagLevelStudy, TagStatus: models.ExtendedQueryTagStatusReady},
	}, nil)

	queryTags, err := newTestService(store).GetQueryTags(ctx)
	require.NoError(t, err)
	require.Len(t, queryTags, 2)
	assert.Equal(t, 3, queryTags[0].ExtendedQueryTagKey)
	assert.Equal(t, models.QueryTagLevelStudy, queryTags[1].Level)
	assert.Equal(t, uint16(0x0030), queryTags[1].Tag.Element)
}
