package dicomweb

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dicom-object-store/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDelete(t *testing.T) {
	instance := models.InstanceIdentifier{
		PartitionKey:      models.DefaultPartitionKey,
		StudyInstanceUID:  "1.2",
		SeriesInstanceUID: "1.2.3",
		SOPInstanceUID:    "1.2.3.4",
	}

	tests := []struct {
		name  string
		path  string
		setup func(m *mockDeleteService)
		want  int
	}{
		{
			name: "study",
			path: "/studies/1.2",
			setup: func(m *mockDeleteService) {
				m.On("DeleteStudy", mock.Anything, models.DefaultPartitionKey, "1.2").Return(nil)
			},
			want: http.StatusNoContent,
		},
		{
			name: "series",
			path: "/studies/1.2/series/1.2.3",
			setup: func(m *mockDeleteService) {
				m.On("DeleteSeries", mock.Anything, models.DefaultPartitionKey, "1.2", "1.2.3").Return(nil)
			},
			want: http.StatusNoContent,
		},
		{
			name: "instance",
			path: "/studies/1.2/series/1.2.3/instances/1.2.3.4",
			setup: func(m *mockDeleteService) {
				m.On("DeleteInstance", mock.Anything, instance).Return(nil)
			},
			want: http.StatusNoContent,
		},
		{
			name: "instance not found",
			path: "/studies/1.2/series/1.2.3/instances/1.2.3.4",
			setup: func(m *mockDeleteService) {
				m.On("DeleteInstance", mock.Anything, instance).Return(models.ErrInstanceNotFound)
			},
			want: http.StatusNotFound,
		},
		{
			name: "index failure",
			path: "/studies/1.2",
			setup: func(m *mockDeleteService) {
				m.On("DeleteStudy", mock.Anything, models.DefaultPartitionKey, "1.2").Return(errors.New("connection refused"))
			},
			want: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			tt.setup(api.delete)

			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			api.delete.AssertExpectations(t)
		})
	}
}
