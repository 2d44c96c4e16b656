package store

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"dicom-object-store/models"
	"dicom-object-store/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestNewResponseStatus(t *testing.T) {
	success := InstanceResult{Identifier: testIdentifier("1.1", "1.1.1", "1.1.1.1", 0).InstanceIdentifier}
	failure := InstanceResult{FailureCode: FailureCodeProcessingFailure, Err: errors.New("boom")}

	tests := []struct {
		name    string
		results []InstanceResult
		want    Status
		code    int
	}{
		{"none", nil, StatusNoContent, http.StatusNoContent},
		{"success", []InstanceResult{success, success}, StatusSuccess, http.StatusOK},
		{"failure", []InstanceResult{failure}, StatusFailure, http.StatusConflict},
		{"mixed", []InstanceResult{success, failure}, StatusPartialSuccess, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := newResponse(tt.results)
			assert.Equal(t, tt.want, response.Status)
			assert.Equal(t, tt.code, response.Status.HTTPStatus())
		})
	}
}

func TestResponseJSON(t *testing.T) {
	response := newResponse([]InstanceResult{
		{
			Identifier:  testIdentifier("1.1", "1.1.1", "1.1.1.1", 0).InstanceIdentifier,
			SOPClassUID: "1.2.3",
			ElementErrors: []validator.ElementError{
				{Tag: tag.StudyDate, VR: "DA", Err: errors.New("invalid date")},
			},
		},
		{
			Identifier:  testIdentifier("1.1", "1.1.1", "1.1.1.2", 0).InstanceIdentifier,
			SOPClassUID: "1.2.3",
			FailureCode: FailureCodeSOPInstanceAlreadyExists,
		},
	})
	response.SetRetrieveURLs("http://pacs")

	data, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded map[string]struct {
		VR    string            `json:"vr"`
		Value []json.RawMessage `json:"Value"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	referenced, ok := decoded["00081199"]
	require.True(t, ok)
	assert.Equal(t, "SQ", referenced.VR)
	require.Len(t, referenced.Value, 1)

	var item map[string]struct {
		VR    string        `json:"vr"`
		Value []interface{} `json:"Value"`
	}
	require.NoError(t, json.Unmarshal(referenced.Value[0], &item))
	assert.Equal(t, []interface{}{"1.1.1.1"}, item["00081155"].Value)
	assert.Equal(t, []interface{}{"http://pacs/studies/1.1/series/1.1.1/instances/1.1.1.1"}, item["00081190"].Value)
	assert.Equal(t, []interface{}{float64(WarningCodeValidationWarnings)}, item["00081196"].Value)
	assert.Equal(t, "SQ", item["00741048"].VR)

	failed, ok := decoded["00081198"]
	require.True(t, ok)
	require.Len(t, failed.Value, 1)
	require.NoError(t, json.Unmarshal(failed.Value[0], &item))
	assert.Equal(t, []interface{}{float64(FailureCodeSOPInstanceAlreadyExists)}, item["00081197"].Value)
}

func TestResponseFailedWithoutIdentifiers(t *testing.T) {
	response := newResponse([]InstanceResult{{FailureCode: FailureCodeProcessingFailure}})
	failed := response.Dataset().Elements
	require.Len(t, failed, 1)
	assert.Equal(t, models.FormatTagPath(tagFailedSOPSequence), models.FormatTagPath(failed[0].Tag))
}
