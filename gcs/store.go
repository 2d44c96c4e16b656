package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"dicom-object-store/models"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Store keeps blobs in a Google Cloud Storage bucket.
type Store struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

// NewStore creates a client using application default credentials.
func NewStore(ctx context.Context, bucket, prefix string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %v", err)
	}
	return &Store{Client: client, Bucket: bucket, Prefix: prefix}, nil
}

func (s *Store) objectName(key string) string {
	if s.Prefix == "" {
		return key
	}
	return path.Join(s.Prefix, key)
}

func (s *Store) object(key string) *storage.ObjectHandle {
	return s.Client.Bucket(s.Bucket).Object(s.objectName(key))
}

// Put uploads r to key. Without overwrite the upload carries a DoesNotExist
// precondition and a 412 maps to models.ErrContentConflict.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, overwrite bool) (*models.FileProperties, error) {
	obj := s.object(key)
	if !overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType(key)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%s: %w", key, models.ErrContentConflict)
		}
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	attrs := w.Attrs()
	return &models.FileProperties{
		Path:          key,
		ETag:          attrs.Etag,
		ContentLength: attrs.Size,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return rc, nil
}

// Delete removes key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (*models.FileProperties, error) {
	attrs, err := s.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &models.FileProperties{
		Path:          key,
		ETag:          attrs.Etag,
		ContentLength: attrs.Size,
	}, nil
}

func (s *Store) Close() error {
	return s.Client.Close()
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func contentType(key string) string {
	if path.Ext(key) == ".json" {
		return "application/dicom+json"
	}
	return "application/dicom"
}
