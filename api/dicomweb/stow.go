package dicomweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"dicom-object-store/store"
	"dicom-object-store/validator"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const (
	mediaTypeDicom        = "application/dicom"
	mediaTypeDicomJSON    = "application/dicom+json"
	mediaTypeMultipartRel = "multipart/related"
)

var (
	errEmptyRequest         = errors.New("request body is empty")
	errUnsupportedMediaType = errors.New("unsupported media type")
)

type StoreService interface {
	Process(ctx context.Context, entries []store.InstanceEntry, requiredStudyInstanceUID string) (*store.Response, error)
}

// STOWResource implements the store transaction.
type STOWResource struct {
	Service        StoreService
	MaxRequestSize int64
}

// NewSTOWResource creates and returns a STOWResource.
func NewSTOWResource(service StoreService, maxRequestSize int64) *STOWResource {
	return &STOWResource{
		Service:        service,
		MaxRequestSize: maxRequestSize,
	}
}

func (rs *STOWResource) save(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")
	if studyUID != "" {
		if err := validator.ValidateUID(studyUID); err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid study instance uid: %w", err)))
			return
		}
	}

	body := io.Reader(r.Body)
	if rs.MaxRequestSize > 0 {
		body = http.MaxBytesReader(w, r.Body, rs.MaxRequestSize)
	}

	entries, err := readEntries(r.Header.Get("Content-Type"), body)
	switch {
	case errors.Is(err, errUnsupportedMediaType):
		render.Render(w, r, ErrUnsupportedMediaType(err))
		return
	case err != nil:
		log(r).WithError(err).Warn("failed to read store request")
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	resp, err := rs.Service.Process(r.Context(), entries, studyUID)
	if err != nil {
		log(r).WithError(err).Error("store request failed")
		render.Render(w, r, ErrInternalServerError)
		return
	}
	resp.SetRetrieveURLs(baseURL(r))

	log(r).WithField("status", resp.Status.String()).
		WithField("stored", len(resp.Referenced)).
		WithField("failed", len(resp.Failed)).
		Info("store request completed")

	status := resp.Status.HTTPStatus()
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeDicomJSON(w, r, status, resp)
}

// readEntries spools every DICOM part of the body. Entries are closed when
// reading fails part way.
func readEntries(contentType string, body io.Reader) ([]store.InstanceEntry, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errUnsupportedMediaType, contentType)
	}

	switch mediaType {
	case mediaTypeDicom:
		entry, err := store.NewFileEntry(body)
		if err != nil {
			return nil, err
		}
		if entry.Size() == 0 {
			entry.Close()
			return nil, errEmptyRequest
		}
		return []store.InstanceEntry{entry}, nil
	case mediaTypeMultipartRel:
		if t := params["type"]; t != "" && !strings.EqualFold(t, mediaTypeDicom) {
			return nil, fmt.Errorf("%w: multipart type %q", errUnsupportedMediaType, t)
		}
		return readMultipartEntries(multipart.NewReader(body, params["boundary"]))
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedMediaType, mediaType)
	}
}

func readMultipartEntries(mr *multipart.Reader) ([]store.InstanceEntry, error) {
	var entries []store.InstanceEntry
	closeAll := func() {
		for _, e := range entries {
			e.Close()
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			closeAll()
			return nil, err
		}

		if ct := part.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != mediaTypeDicom {
				part.Close()
				closeAll()
				return nil, fmt.Errorf("%w: part type %q", errUnsupportedMediaType, ct)
			}
		}

		entry, err := store.NewFileEntry(part)
		part.Close()
		if err != nil {
			closeAll()
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, errEmptyRequest
	}
	return entries, nil
}

func writeDicomJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log(r).WithError(err).Error("failed to encode response")
		render.Render(w, r, ErrInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mediaTypeDicomJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
