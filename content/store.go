package content

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/suyashkumar/dicom"
)

// BlobStore is implemented by the fs and gcs backends.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, overwrite bool) (*models.FileProperties, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (*models.FileProperties, error)
}

// Store addresses instance files and metadata by versioned identifier.
type Store struct {
	Blobs BlobStore
	// Overwrite selects the default overwrite mode. When false writes fail
	// with models.ErrContentConflict if the blob exists.
	Overwrite bool
}

func NewStore(blobs BlobStore, overwrite bool) *Store {
	return &Store{Blobs: blobs, Overwrite: overwrite}
}

// InstanceFileKey returns "{study}/{series}/{sop}_{watermark}.dcm".
func InstanceFileKey(id models.VersionedInstanceIdentifier) string {
	return fmt.Sprintf("%s/%s/%s_%d.dcm", id.StudyInstanceUID, id.SeriesInstanceUID, id.SOPInstanceUID, id.Version)
}

// InstanceMetadataKey returns "{study}/{series}/{sop}_{watermark}_metadata.json".
func InstanceMetadataKey(id models.VersionedInstanceIdentifier) string {
	return fmt.Sprintf("%s/%s/%s_%d_metadata.json", id.StudyInstanceUID, id.SeriesInstanceUID, id.SOPInstanceUID, id.Version)
}

func (s *Store) StoreInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier, r io.Reader) (*models.FileProperties, error) {
	return s.Blobs.Put(ctx, InstanceFileKey(id), r, s.Overwrite)
}

func (s *Store) GetInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) (io.ReadCloser, error) {
	return s.Blobs.Get(ctx, InstanceFileKey(id))
}

func (s *Store) DeleteInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	return s.Blobs.Delete(ctx, InstanceFileKey(id))
}

func (s *Store) GetInstanceFileProperties(ctx context.Context, id models.VersionedInstanceIdentifier) (*models.FileProperties, error) {
	return s.Blobs.Stat(ctx, InstanceFileKey(id))
}

// StoreInstanceMetadata writes the DICOM JSON of dataset without bulk data.
func (s *Store) StoreInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier, dataset dicom.Dataset) error {
	data, err := utils.MarshalMetadata(dataset)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", id, err)
	}
	_, err = s.Blobs.Put(ctx, InstanceMetadataKey(id), bytes.NewReader(data), s.Overwrite)
	return err
}

func (s *Store) GetInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) (dicom.Dataset, error) {
	data, err := s.GetInstanceMetadataJSON(ctx, id)
	if err != nil {
		return dicom.Dataset{}, err
	}
	return utils.UnmarshalMetadata(data)
}

// GetInstanceMetadataJSON returns the stored DICOM JSON unparsed.
func (s *Store) GetInstanceMetadataJSON(ctx context.Context, id models.VersionedInstanceIdentifier) ([]byte, error) {
	rc, err := s.Blobs.Get(ctx, InstanceMetadataKey(id))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Store) DeleteInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier) error {
	return s.Blobs.Delete(ctx, InstanceMetadataKey(id))
}
