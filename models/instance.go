package models

import (
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-pg/pg/orm"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// InstanceStatus gates row visibility: only Created rows are returned by
// retrieve, change feed, backfill and reindex paths.
type InstanceStatus int16

const (
	InstanceStatusCreating InstanceStatus = iota
	InstanceStatusCreated
)

func (s InstanceStatus) String() string {
	switch s {
	case InstanceStatusCreating:
		return "creating"
	case InstanceStatusCreated:
		return "created"
	default:
		return "unknown"
	}
}

type Instance struct {
	TableName struct{} `sql:"instance" json:"-"`

	InstanceKey  int64 `sql:",pk" json:"-"`
	PartitionKey int   `sql:",notnull" json:"partition_key"`
	StudyKey     int64 `sql:",notnull" json:"-"`
	SeriesKey    int64 `sql:",notnull" json:"-"`

	StudyInstanceUID  string  `sql:"study_instance_uid" json:"study_instance_uid" dicom:"StudyInstanceUID"`
	SeriesInstanceUID string  `sql:"series_instance_uid" json:"series_instance_uid" dicom:"SeriesInstanceUID"`
	SOPInstanceUID    string  `sql:"sop_instance_uid" json:"sop_instance_uid" dicom:"SOPInstanceUID"`
	SOPClassUID       string  `sql:"sop_class_uid" json:"sop_class_uid" dicom:"SOPClassUID"`
	TransferSyntaxUID *string `sql:"transfer_syntax_uid" json:"transfer_syntax_uid,omitempty" dicom:"TransferSyntaxUID"`

	Watermark         int64          `sql:",notnull" json:"watermark"`
	OriginalWatermark *int64         `json:"original_watermark,omitempty"`
	NewWatermark      *int64         `json:"new_watermark,omitempty"`
	Status            InstanceStatus `sql:",notnull" json:"status"`

	CreatedAt          time.Time `json:"created_at"`
	LastStatusUpdateAt time.Time `json:"last_status_update_at"`
}

func (i *Instance) GetObjectIdFieldTag() tag.Tag {
	return tag.SOPInstanceUID
}

// BeforeInsert hook executed before database insert operation.
func (i *Instance) BeforeInsert(db orm.DB) error {
	now := time.Now().UTC()
	i.CreatedAt = now
	i.LastStatusUpdateAt = now
	return i.Validate()
}

// Validate validates Instance struct and returns validation errors.
func (i *Instance) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.StudyInstanceUID, validation.Required, validation.Length(1, 64)),
		validation.Field(&i.SeriesInstanceUID, validation.Required, validation.Length(1, 64)),
		validation.Field(&i.SOPInstanceUID, validation.Required, validation.Length(1, 64)),
		validation.Field(&i.SOPClassUID, validation.Required, validation.Length(1, 64)),
	)
}

// Identifier returns the versioned identifier of the row.
func (i *Instance) Identifier() VersionedInstanceIdentifier {
	return VersionedInstanceIdentifier{
		InstanceIdentifier: InstanceIdentifier{
			PartitionKey:      i.PartitionKey,
			StudyInstanceUID:  i.StudyInstanceUID,
			SeriesInstanceUID: i.SeriesInstanceUID,
			SOPInstanceUID:    i.SOPInstanceUID,
		},
		Version: i.Watermark,
	}
}
