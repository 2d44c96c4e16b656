package gcs

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestObjectName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", key: "1.2/1.2.3/1.2.3.4_1.dcm", want: "1.2/1.2.3/1.2.3.4_1.dcm"},
		{name: "prefix", prefix: "dicom", key: "1.2/1.2.3/1.2.3.4_1.dcm", want: "dicom/1.2/1.2.3/1.2.3.4_1.dcm"},
		{name: "prefix with slash", prefix: "dicom/", key: "a.dcm", want: "dicom/a.dcm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Store{Prefix: tt.prefix}
			assert.Equal(t, tt.want, s.objectName(tt.key))
		})
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.True(t, isPreconditionFailed(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusNotFound}))
	assert.False(t, isPreconditionFailed(fmt.Errorf("plain")))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/dicom+json", contentType("a/b/c_1_metadata.json"))
	assert.Equal(t, "application/dicom", contentType("a/b/c_1.dcm"))
}
