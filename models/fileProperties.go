package models

// FileProperties describes the blob written for one instance version.
// ContentLength 0 means unknown and is filled in by the backfill job.
type FileProperties struct {
	TableName struct{} `sql:"file_property" json:"-"`

	Watermark     int64  `sql:",pk" json:"-"`
	InstanceKey   int64  `sql:",notnull" json:"-"`
	Path          string `sql:"file_path" json:"path"`
	ETag          string `sql:"etag" json:"etag"`
	ContentLength int64  `sql:",notnull" json:"content_length"`
}
