package dicomweb

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"dicom-object-store/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type RequestType int

const (
	requestTypeDefault RequestType = iota
	requestTypeMetadata
)

type InstanceLocator interface {
	GetInstanceIdentifiers(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID, sopInstanceUID string) ([]models.VersionedInstanceIdentifier, error)
}

type InstanceReader interface {
	GetInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) (io.ReadCloser, error)
	GetInstanceMetadataJSON(ctx context.Context, id models.VersionedInstanceIdentifier) ([]byte, error)
}

// WADOResource implements the retrieve transaction.
type WADOResource struct {
	Index   InstanceLocator
	Content InstanceReader
}

// NewWADOResource creates and returns a WADOResource.
func NewWADOResource(index InstanceLocator, content InstanceReader) *WADOResource {
	return &WADOResource{
		Index:   index,
		Content: content,
	}
}

// ctx resolves the instances addressed by the route into the request context.
func (rs *WADOResource) ctx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids, err := rs.Index.GetInstanceIdentifiers(r.Context(), models.DefaultPartitionKey,
			chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), chi.URLParam(r, "instanceUID"))
		if err != nil {
			renderError(w, r, err, "failed to resolve instances")
			return
		}
		ctx := context.WithValue(r.Context(), ctxInstances, ids)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rs *WADOResource) ctxDefaultRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxRequestType, requestTypeDefault)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rs *WADOResource) ctxMetadataRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxRequestType, requestTypeMetadata)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rs *WADOResource) retrieve(w http.ResponseWriter, r *http.Request) {
	ids, ok := r.Context().Value(ctxInstances).([]models.VersionedInstanceIdentifier)
	if !ok || len(ids) == 0 {
		render.Render(w, r, ErrNotFound)
		return
	}

	requestType, _ := r.Context().Value(ctxRequestType).(RequestType)
	var err error
	switch requestType {
	case requestTypeMetadata:
		err = rs.writeMetadata(w, r, ids)
	default:
		err = rs.writeInstances(w, r, ids)
	}
	if err != nil {
		log(r).WithError(err).Error("retrieve failed")
	}
}

// writeMetadata answers with a DICOM JSON array. Missing metadata blobs are
// reported before anything is written.
func (rs *WADOResource) writeMetadata(w http.ResponseWriter, r *http.Request, ids []models.VersionedInstanceIdentifier) error {
	parts := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, err := rs.Content.GetInstanceMetadataJSON(r.Context(), id)
		if err != nil {
			renderError(w, r, err, "failed to read metadata")
			return nil
		}
		parts = append(parts, data)
	}

	w.Header().Set("Content-Type", mediaTypeDicomJSON)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, data := range parts {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// writeInstances streams the instance files as a multipart/related response.
// The first file is opened before the status is written.
func (rs *WADOResource) writeInstances(w http.ResponseWriter, r *http.Request, ids []models.VersionedInstanceIdentifier) error {
	first, err := rs.Content.GetInstanceFile(r.Context(), ids[0])
	if err != nil {
		renderError(w, r, err, "failed to open instance")
		return nil
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", fmt.Sprintf("%s; type=%q; boundary=%s", mediaTypeMultipartRel, mediaTypeDicom, mw.Boundary()))
	w.WriteHeader(http.StatusOK)

	partHeaders := textproto.MIMEHeader{}
	partHeaders.Set("Content-Type", mediaTypeDicom)

	for i, id := range ids {
		file := first
		if i > 0 {
			file, err = rs.Content.GetInstanceFile(r.Context(), id)
			if err != nil {
				return fmt.Errorf("open %s: %w", id, err)
			}
		}

		partWriter, err := mw.CreatePart(partHeaders)
		if err != nil {
			file.Close()
			return err
		}
		_, err = io.Copy(partWriter, file)
		file.Close()
		if err != nil {
			return err
		}
	}

	return mw.Close()
}
