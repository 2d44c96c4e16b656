package fs

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dicom-object-store/models"
)

const UPLOADS_DIR = "uploads"
const DICOM_PREFIX = "dicom"

// FileManager stores blobs on local disk. Every key component is hashed so
// that UIDs never reach the file system as path segments.
type FileManager struct {
	root string
}

func NewFileManager(root string) *FileManager {
	if root == "" {
		root = "./"
	}
	return &FileManager{root: root}
}

// GetPath returns the file the blob of key is stored in.
func (m *FileManager) GetPath(key string) string {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	segments := make([]string, 0, len(parts)+3)
	segments = append(segments, m.root, UPLOADS_DIR, DICOM_PREFIX)
	for i, part := range parts {
		if i == len(parts)-1 {
			ext := filepath.Ext(part)
			segments = append(segments, hashPathString(strings.TrimSuffix(part, ext))+ext)
			continue
		}
		segments = append(segments, hashPathString(part))
	}
	return filepath.Join(segments...)
}

// Put writes r to key. With overwrite unset an existing blob fails with
// models.ErrContentConflict.
func (m *FileManager) Put(ctx context.Context, key string, r io.Reader, overwrite bool) (*models.FileProperties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := m.GetPath(key)
	dirpath := filepath.Dir(path)
	if err := os.MkdirAll(dirpath, os.ModePerm); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dirpath, ".upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	if overwrite {
		err = os.Rename(tmp.Name(), path)
	} else {
		// link fails when the target exists
		err = os.Link(tmp.Name(), path)
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", key, models.ErrContentConflict)
		}
	}
	if err != nil {
		return nil, err
	}

	return &models.FileProperties{
		Path:          key,
		ETag:          hex.EncodeToString(hash.Sum(nil)),
		ContentLength: n,
	}, nil
}

func (m *FileManager) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(m.GetPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrContentNotFound)
	}
	return file, err
}

// Delete removes key. Missing blobs are not an error.
func (m *FileManager) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(m.GetPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *FileManager) Stat(ctx context.Context, key string) (*models.FileProperties, error) {
	file, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hash := md5.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return nil, err
	}
	return &models.FileProperties{
		Path:          key,
		ETag:          hex.EncodeToString(hash.Sum(nil)),
		ContentLength: n,
	}, nil
}

func hashPathString(id string) string {
	hash := sha1.New()
	hash.Write([]byte(id))

	return hex.EncodeToString(hash.Sum(nil))
}
