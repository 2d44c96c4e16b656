package models

import (
	"fmt"
	"time"
)

type ChangeFeedAction int16

const (
	ChangeFeedActionCreate ChangeFeedAction = iota
	ChangeFeedActionDelete
)

func (a ChangeFeedAction) String() string {
	switch a {
	case ChangeFeedActionCreate:
		return "create"
	case ChangeFeedActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MarshalText renders the action by name in change feed responses.
func (a ChangeFeedAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

type ChangeFeedOrder int

const (
	ChangeFeedOrderBySequence ChangeFeedOrder = iota
	ChangeFeedOrderByTimestamp
)

// ParseChangeFeedOrder accepts "sequence" (default) or "timestamp".
func ParseChangeFeedOrder(s string) (ChangeFeedOrder, error) {
	switch s {
	case "", "sequence":
		return ChangeFeedOrderBySequence, nil
	case "timestamp", "time":
		return ChangeFeedOrderByTimestamp, nil
	default:
		return 0, fmt.Errorf("unknown change feed order %q", s)
	}
}

// ChangeFeedEntry is an append-only create or delete event for one instance.
// CurrentWatermark is nil once the instance has been deleted.
type ChangeFeedEntry struct {
	TableName struct{} `sql:"change_feed" json:"-"`

	Sequence          int64            `sql:",pk" json:"sequence"`
	Timestamp         time.Time        `sql:",notnull" json:"timestamp"`
	Action            ChangeFeedAction `sql:",notnull" json:"action"`
	PartitionKey      int              `sql:",notnull" json:"partition_key"`
	StudyInstanceUID  string           `sql:"study_instance_uid" json:"study_instance_uid"`
	SeriesInstanceUID string           `sql:"series_instance_uid" json:"series_instance_uid"`
	SOPInstanceUID    string           `sql:"sop_instance_uid" json:"sop_instance_uid"`
	OriginalWatermark int64            `sql:",notnull" json:"original_watermark"`
	CurrentWatermark  *int64           `json:"current_watermark"`
}

// TimeRange is a half-open [Start, End) window. Zero values are unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}
