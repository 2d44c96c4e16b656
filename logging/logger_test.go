package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevel(t *testing.T) {
	viper.Set("log_level", "debug")
	defer viper.Set("log_level", "")

	logger := NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	assert.Same(t, logger, Logger)

	viper.Set("log_level", "loud")
	assert.Equal(t, logrus.InfoLevel, NewLogger().Level)
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.Formatter = &logrus.JSONFormatter{}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(NewStructuredLogger(logger))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		LogEntrySetField(r, "study", "1.2.3")
		GetLogEntry(r).Info("handled")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	var handled, complete map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &handled))
	require.NoError(t, json.Unmarshal(lines[2], &complete))

	assert.Equal(t, "handled", handled["msg"])
	assert.Equal(t, "1.2.3", handled["study"])
	assert.NotEmpty(t, handled["req_id"])
	assert.Equal(t, float64(http.StatusTeapot), complete["resp_status"])
}

func TestGetLogEntryWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotNil(t, GetLogEntry(req))
}
