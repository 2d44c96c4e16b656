package models

import (
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-pg/pg/orm"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Study is the partition-scoped study aggregate. Columns follow the
// last-non-null-wins merge rule; Watermark records the instance version that
// last wrote the row and breaks ties between racing writers.
type Study struct {
	TableName struct{} `sql:"study" json:"-"`

	StudyKey     int64     `sql:",pk" json:"-"`
	PartitionKey int       `sql:",notnull" json:"partition_key"`
	Watermark    int64     `sql:",notnull" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	StudyInstanceUID       string  `sql:"study_instance_uid" json:"study_instance_uid" dicom:"StudyInstanceUID"`
	PatientID              string  `sql:"patient_id" json:"patient_id" dicom:"PatientID"`
	PatientName            *string `json:"patient_name,omitempty" dicom:"PatientName"`
	PatientBirthDate       *string `json:"patient_birth_date,omitempty" dicom:"PatientBirthDate"`
	ReferringPhysicianName *string `json:"referring_physician_name,omitempty" dicom:"ReferringPhysicianName"`
	StudyDate              *string `json:"study_date,omitempty" dicom:"StudyDate"`
	StudyDescription       *string `json:"study_description,omitempty" dicom:"StudyDescription"`
	AccessionNumber        *string `json:"accession_number,omitempty" dicom:"AccessionNumber"`
}

func (s *Study) GetObjectIdFieldTag() tag.Tag {
	return tag.StudyInstanceUID
}

// BeforeInsert hook executed before database insert operation.
func (s *Study) BeforeInsert(db orm.DB) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return s.Validate()
}

// Validate validates Study struct and returns validation errors.
func (s *Study) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.StudyInstanceUID, validation.Required, validation.Length(1, 64)),
		validation.Field(&s.PatientID, validation.Required, validation.Length(1, 64)),
	)
}
