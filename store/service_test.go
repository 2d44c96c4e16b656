package store

import (
	"context"
	"errors"
	"testing"

	"dicom-object-store/models"
	"dicom-object-store/validator"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func newTestService(storer InstanceStorer, queryTags QueryTagProvider) *Service {
	logger, _ := test.NewNullLogger()
	return NewService(storer, queryTags, validator.Options{Mode: validator.ValidationModeFull}, 2, logger)
}

func TestProcessEmptyRequest(t *testing.T) {
	storer := &mockStorer{}
	queryTags := &mockQueryTags{}
	s := newTestService(storer, queryTags)

	response, err := s.Process(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusNoContent, response.Status)
	queryTags.AssertNotCalled(t, "GetQueryTags", mock.Anything)
}

func TestProcessQueryTagFailure(t *testing.T) {
	storer := &mockStorer{}
	queryTags := &mockQueryTags{}
	queryTags.On("GetQueryTags", mock.Anything).Return(nil, errors.New("db down"))
	s := newTestService(storer, queryTags)

	entry := &fakeEntry{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}
	_, err := s.Process(context.Background(), []InstanceEntry{entry}, "")
	assert.Error(t, err)
	assert.True(t, entry.closed)
}

func TestProcess(t *testing.T) {
	missingStudy := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.PatientID, []string{"PID"}),
		mustElement(t, tag.SeriesInstanceUID, []string{"1.1.1"}),
		mustElement(t, tag.SOPInstanceUID, []string{"1.1.1.9"}),
		mustElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
	}}

	tests := []struct {
		name         string
		entries      []*fakeEntry
		required     string
		storeErr     error
		wantStatus   Status
		wantCodes    []int
		wantSucceeded int
	}{
		{
			name:         "all stored",
			entries:      []*fakeEntry{{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}, {dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.2")}},
			wantStatus:   StatusSuccess,
			wantSucceeded: 2,
		},
		{
			name:         "one invalid",
			entries:      []*fakeEntry{{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}, {dataset: missingStudy}},
			wantStatus:   StatusPartialSuccess,
			wantCodes:    []int{FailureCodeValidationFailure},
			wantSucceeded: 1,
		},
		{
			name:       "study mismatch",
			entries:    []*fakeEntry{{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}},
			required:   "1.2",
			wantStatus: StatusFailure,
			wantCodes:  []int{FailureCodeMismatchStudyInstanceUID},
		},
		{
			name:       "unreadable entry",
			entries:    []*fakeEntry{{err: errors.New("not dicom")}},
			wantStatus: StatusFailure,
			wantCodes:  []int{FailureCodeProcessingFailure},
		},
		{
			name:       "duplicate instance",
			entries:    []*fakeEntry{{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}},
			storeErr:   models.ErrInstanceAlreadyExists,
			wantStatus: StatusFailure,
			wantCodes:  []int{FailureCodeSOPInstanceAlreadyExists},
		},
		{
			name:       "store failure",
			entries:    []*fakeEntry{{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}},
			storeErr:   errors.New("boom"),
			wantStatus: StatusFailure,
			wantCodes:  []int{FailureCodeProcessingFailure},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storer := &mockStorer{}
			storer.On("StoreInstance", mock.Anything, models.DefaultPartitionKey, mock.Anything, mock.Anything, mock.Anything).
				Return(&models.FileProperties{}, tt.storeErr)
			queryTags := &mockQueryTags{}
			queryTags.On("GetQueryTags", mock.Anything).Return([]models.QueryTag{}, nil).Once()
			s := newTestService(storer, queryTags)

			entries := make([]InstanceEntry, len(tt.entries))
			for i, e := range tt.entries {
				entries[i] = e
			}
			response, err := s.Process(context.Background(), entries, tt.required)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, response.Status)
			assert.Len(t, response.Referenced, tt.wantSucceeded)
			var codes []int
			for _, failed := range response.Failed {
				codes = append(codes, failed.FailureReason)
			}
			assert.Equal(t, tt.wantCodes, codes)
			for _, e := range tt.entries {
				assert.True(t, e.closed)
			}
			queryTags.AssertExpectations(t)
		})
	}
}

func TestProcessReportsFailedSOPInstanceUID(t *testing.T) {
	storer := &mockStorer{}
	storer.On("StoreInstance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrInstanceAlreadyExists)
	queryTags := &mockQueryTags{}
	queryTags.On("GetQueryTags", mock.Anything).Return([]models.QueryTag{}, nil)
	s := newTestService(storer, queryTags)

	response, err := s.Process(context.Background(), []InstanceEntry{&fakeEntry{dataset: testDataset(t, "1.1", "1.1.1", "1.1.1.1")}}, "")
	require.NoError(t, err)
	require.Len(t, response.Failed, 1)
	assert.Equal(t, "1.1.1.1", response.Failed[0].SOPInstanceUID)
	assert.Equal(t, "1.2.840.10008.5.1.4.1.1.2", response.Failed[0].SOPClassUID)
}
