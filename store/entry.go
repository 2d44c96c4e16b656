// Package store runs store requests: validation, the two-phase index
// protocol around content writes, compensation and the cleanup reaper.
package store

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/suyashkumar/dicom"
)

// InstanceEntry is one DICOM part of a store request.
type InstanceEntry interface {
	// GetDataset parses the part. Repeated calls return the same dataset.
	GetDataset() (dicom.Dataset, error)
	// GetStream returns the raw bytes of the part from the beginning.
	GetStream() (io.Reader, error)
	Close() error
}

// FileEntry spools a part to a temporary file so it can be parsed and then
// streamed to the content store.
type FileEntry struct {
	file *os.File
	size int64

	once    sync.Once
	dataset dicom.Dataset
	err     error
}

// NewFileEntry copies r into a temporary file.
func NewFileEntry(r io.Reader) (*FileEntry, error) {
	f, err := os.CreateTemp("", "dicom-entry-*")
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool entry: %w", err)
	}
	return &FileEntry{file: f, size: size}, nil
}

// Size returns the number of bytes in the part.
func (e *FileEntry) Size() int64 {
	return e.size
}

func (e *FileEntry) GetDataset() (dicom.Dataset, error) {
	e.once.Do(func() {
		if _, err := e.file.Seek(0, io.SeekStart); err != nil {
			e.err = err
			return
		}
		e.dataset, e.err = dicom.Parse(e.file, e.size, nil)
	})
	return e.dataset, e.err
}

func (e *FileEntry) GetStream() (io.Reader, error) {
	if _, err := e.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.LimitReader(e.file, e.size), nil
}

// Close removes the temporary file.
func (e *FileEntry) Close() error {
	err := e.file.Close()
	if rmErr := os.Remove(e.file.Name()); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
