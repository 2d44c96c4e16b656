package models

import "github.com/suyashkumar/dicom/pkg/tag"

// DicomObject is a row populated from dataset elements through `dicom` struct tags.
type DicomObject interface {
	GetObjectIdFieldTag() tag.Tag
}
