package models

import "fmt"

// DefaultPartitionKey keys every instance stored through the HTTP surface.
const DefaultPartitionKey = 1

type InstanceIdentifier struct {
	PartitionKey      int    `sql:"partition_key" json:"partition_key"`
	StudyInstanceUID  string `sql:"study_instance_uid" json:"study_instance_uid"`
	SeriesInstanceUID string `sql:"series_instance_uid" json:"series_instance_uid"`
	SOPInstanceUID    string `sql:"sop_instance_uid" json:"sop_instance_uid"`
}

func (id InstanceIdentifier) String() string {
	return fmt.Sprintf("%d/%s/%s/%s", id.PartitionKey, id.StudyInstanceUID, id.SeriesInstanceUID, id.SOPInstanceUID)
}

// VersionedInstanceIdentifier addresses one create attempt of an instance.
// Version is the watermark and is part of every blob key.
type VersionedInstanceIdentifier struct {
	InstanceIdentifier
	Version int64 `sql:"watermark" json:"version"`
}

func (id VersionedInstanceIdentifier) String() string {
	return fmt.Sprintf("%s@%d", id.InstanceIdentifier.String(), id.Version)
}

// InstanceMetadata is returned by BeginUpdateInstances: the current version,
// the version the update will commit and the file properties copied forward.
type InstanceMetadata struct {
	VersionedInstanceIdentifier
	OriginalVersion *int64          `sql:"original_watermark"`
	NewVersion      int64           `sql:"new_watermark"`
	FileProperties  *FileProperties `sql:"-"`
}

// WatermarkRange is an inclusive range of watermarks.
type WatermarkRange struct {
	Start int64 `sql:"start_watermark" json:"start"`
	End   int64 `sql:"end_watermark" json:"end"`
}

func (r WatermarkRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}
