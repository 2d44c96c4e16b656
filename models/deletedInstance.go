package models

import "time"

// DeletedInstance is a ledger entry for blobs that still have to be removed.
type DeletedInstance struct {
	TableName struct{} `sql:"deleted_instance" json:"-"`

	PartitionKey      int       `sql:",notnull"`
	StudyInstanceUID  string    `sql:"study_instance_uid"`
	SeriesInstanceUID string    `sql:"series_instance_uid"`
	SOPInstanceUID    string    `sql:"sop_instance_uid"`
	Watermark         int64     `sql:",notnull"`
	DeletedDate       time.Time `sql:",notnull"`
	RetryCount        int       `sql:",notnull"`
	CleanupAfter      time.Time `sql:",notnull"`
	FilePath          *string   `sql:"file_path"`
	ETag              *string   `sql:"etag"`
}

func (d *DeletedInstance) Identifier() VersionedInstanceIdentifier {
	return VersionedInstanceIdentifier{
		InstanceIdentifier: InstanceIdentifier{
			PartitionKey:      d.PartitionKey,
			StudyInstanceUID:  d.StudyInstanceUID,
			SeriesInstanceUID: d.SeriesInstanceUID,
			SOPInstanceUID:    d.SOPInstanceUID,
		},
		Version: d.Watermark,
	}
}
