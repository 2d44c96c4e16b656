package models

import (
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-pg/pg/orm"
	"github.com/suyashkumar/dicom/pkg/tag"
)

type Series struct {
	TableName struct{} `sql:"series" json:"-"`

	SeriesKey    int64     `sql:",pk" json:"-"`
	StudyKey     int64     `sql:",notnull" json:"-"`
	PartitionKey int       `sql:",notnull" json:"partition_key"`
	Watermark    int64     `sql:",notnull" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	SeriesInstanceUID               string  `sql:"series_instance_uid" json:"series_instance_uid" dicom:"SeriesInstanceUID"`
	Modality                        *string `json:"modality,omitempty" dicom:"Modality"`
	SeriesNumber                    *string `json:"series_number,omitempty" dicom:"SeriesNumber"`
	PerformedProcedureStepStartDate *string `json:"performed_procedure_step_start_date,omitempty" dicom:"PerformedProcedureStepStartDate"`
}

func (s *Series) GetObjectIdFieldTag() tag.Tag {
	return tag.SeriesInstanceUID
}

// BeforeInsert hook executed before database insert operation.
func (s *Series) BeforeInsert(db orm.DB) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return s.Validate()
}

// Validate validates Series struct and returns validation errors.
func (s *Series) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SeriesInstanceUID, validation.Required, validation.Length(1, 64)),
	)
}
