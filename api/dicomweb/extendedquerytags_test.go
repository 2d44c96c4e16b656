package dicomweb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dicom-object-store/models"
	"dicom-object-store/querytag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestQueryTagsAdd(t *testing.T) {
	api := newTestAPI()
	reindexer := &mockReindexer{done: make(chan struct{})}
	reindexer.On("Run").Return("op-1", nil)
	api.router = NewAPI(Services{QueryTags: api.queryTags, Reindexer: reindexer}).Router()

	entries := []models.AddExtendedQueryTagEntry{{Path: "PatientAge", Level: "Study"}}
	api.queryTags.On("Add", mock.Anything, entries).Return([]*models.ExtendedQueryTag{{
		TagKey:  1,
		TagPath: "00101010",
		TagVR:   "AS",
	}}, nil)

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/extendedquerytags", `[{"path":"PatientAge","level":"Study"}]`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var tags []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "00101010", tags[0]["path"])
	assert.Equal(t, "Adding", tags[0]["status"])

	select {
	case <-reindexer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reindex was not started")
	}
	reindexer.AssertExpectations(t)
}

func TestQueryTagsAddRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "empty list", body: `[]`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"path":`, want: http.StatusBadRequest},
		{name: "invalid tag", body: `[{"path":"PatientID"}]`, err: querytag.ErrInvalidQueryTag, want: http.StatusBadRequest},
		{name: "already exists", body: `[{"path":"PatientAge"}]`, err: models.ErrTagsAlreadyExist, want: http.StatusConflict},
		{name: "too many", body: `[{"path":"PatientAge"}]`, err: models.ErrTagsExceedMaxAllowedCount, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			if tt.err != nil {
				api.queryTags.On("Add", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/extendedquerytags", tt.body))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestQueryTagsList(t *testing.T) {
	api := newTestAPI()
	api.queryTags.On("List", mock.Anything, 5, 10).Return(nil, nil)

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extendedquerytags?limit=5&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extendedquerytags?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryTagsGet(t *testing.T) {
	api := newTestAPI()
	api.queryTags.On("Get", mock.Anything, "00101010").Return(&models.ExtendedQueryTag{TagPath: "00101010", TagVR: "AS", TagStatus: models.ExtendedQueryTagStatusReady}, nil)
	api.queryTags.On("Get", mock.Anything, "PatientWeight").Return(nil, models.ErrTagNotFound)

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extendedquerytags/00101010", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Ready"`)

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extendedquerytags/PatientWeight", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryTagsUpdate(t *testing.T) {
	api := newTestAPI()
	api.queryTags.On("UpdateQueryStatus", mock.Anything, "00101010", models.QueryStatusDisabled).
		Return(&models.ExtendedQueryTag{TagPath: "00101010", QueryStatus: models.QueryStatusDisabled}, nil)

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, jsonRequest(http.MethodPatch, "/extendedquerytags/00101010", `{"query_status":"disabled"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"query_status":"Disabled"`)

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, jsonRequest(http.MethodPatch, "/extendedquerytags/00101010", `{"query_status":"paused"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryTagsDelete(t *testing.T) {
	api := newTestAPI()
	api.queryTags.On("Delete", mock.Anything, "00101010").Return(nil).Once()
	api.queryTags.On("Delete", mock.Anything, "00101010").Return(models.ErrTagBusy).Once()

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/extendedquerytags/00101010", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/extendedquerytags/00101010", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
