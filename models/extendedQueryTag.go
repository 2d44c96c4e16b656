package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
)

type QueryTagLevel int16

const (
	QueryTagLevelInstance QueryTagLevel = iota
	QueryTagLevelSeries
	QueryTagLevelStudy
)

func (l QueryTagLevel) String() string {
	switch l {
	case QueryTagLevelInstance:
		return "Instance"
	case QueryTagLevelSeries:
		return "Series"
	case QueryTagLevelStudy:
		return "Study"
	default:
		return "Unknown"
	}
}

// ParseQueryTagLevel parses a level name case-insensitively.
func ParseQueryTagLevel(s string) (QueryTagLevel, error) {
	switch strings.ToLower(s) {
	case "instance":
		return QueryTagLevelInstance, nil
	case "series":
		return QueryTagLevelSeries, nil
	case "study":
		return QueryTagLevelStudy, nil
	default:
		return 0, fmt.Errorf("unknown query tag level %q", s)
	}
}

func (l QueryTagLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

type ExtendedQueryTagStatus int16

const (
	ExtendedQueryTagStatusAdding ExtendedQueryTagStatus = iota
	ExtendedQueryTagStatusReindexing
	ExtendedQueryTagStatusReady
)

func (s ExtendedQueryTagStatus) String() string {
	switch s {
	case ExtendedQueryTagStatusAdding:
		return "Adding"
	case ExtendedQueryTagStatusReindexing:
		return "Reindexing"
	case ExtendedQueryTagStatusReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

func (s ExtendedQueryTagStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type QueryStatus int16

const (
	QueryStatusDisabled QueryStatus = iota
	QueryStatusEnabled
)

func (s QueryStatus) String() string {
	if s == QueryStatusEnabled {
		return "Enabled"
	}
	return "Disabled"
}

func (s QueryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseQueryStatus parses "Enabled" or "Disabled" case-insensitively.
func ParseQueryStatus(s string) (QueryStatus, error) {
	switch strings.ToLower(s) {
	case "enabled":
		return QueryStatusEnabled, nil
	case "disabled":
		return QueryStatusDisabled, nil
	default:
		return 0, fmt.Errorf("unknown query status %q", s)
	}
}

// ExtendedQueryTagDataType selects the value table a tag is indexed into.
type ExtendedQueryTagDataType int

const (
	DataTypeString ExtendedQueryTagDataType = iota
	DataTypeLong
	DataTypeDouble
	DataTypeDateTime
	DataTypePersonName
)

func (t ExtendedQueryTagDataType) String() string {
	switch t {
	case DataTypeString:
		return "string"
	case DataTypeLong:
		return "long"
	case DataTypeDouble:
		return "double"
	case DataTypeDateTime:
		return "datetime"
	case DataTypePersonName:
		return "person_name"
	default:
		return "unknown"
	}
}

var dataTypesByVR = map[string]ExtendedQueryTagDataType{
	"AE": DataTypeString,
	"AS": DataTypeString,
	"CS": DataTypeString,
	"DS": DataTypeString,
	"LO": DataTypeString,
	"SH": DataTypeString,
	"TM": DataTypeString,
	"UI": DataTypeString,
	"IS": DataTypeLong,
	"SL": DataTypeLong,
	"SS": DataTypeLong,
	"UL": DataTypeLong,
	"US": DataTypeLong,
	"FL": DataTypeDouble,
	"FD": DataTypeDouble,
	"DA": DataTypeDateTime,
	"DT": DataTypeDateTime,
	"PN": DataTypePersonName,
}

// DataTypeForVR returns the index data type of a VR and whether the VR can be
// indexed at all.
func DataTypeForVR(vr string) (ExtendedQueryTagDataType, bool) {
	t, ok := dataTypesByVR[strings.ToUpper(vr)]
	return t, ok
}

// ExtendedQueryTag is a tag promoted to an indexed column.
type ExtendedQueryTag struct {
	TableName struct{} `sql:"extended_query_tag" json:"-"`

	TagKey            int                    `sql:",pk" json:"-"`
	TagPath           string                 `sql:",notnull" json:"path"`
	TagVR             string                 `sql:"tag_vr,notnull" json:"vr"`
	TagPrivateCreator *string                `json:"private_creator,omitempty"`
	TagLevel          QueryTagLevel          `sql:",notnull" json:"level"`
	TagStatus         ExtendedQueryTagStatus `sql:",notnull" json:"status"`
	QueryStatus       QueryStatus            `sql:",notnull" json:"query_status"`
	OperationID       *string                `sql:"operation_id" json:"operation_id,omitempty"`
	ErrorCount        int                    `sql:",notnull" json:"error_count"`
	CreatedAt         time.Time              `json:"created_at"`
}

// AddExtendedQueryTagEntry is a request to register one tag.
type AddExtendedQueryTagEntry struct {
	Path           string `json:"path"`
	VR             string `json:"vr"`
	PrivateCreator string `json:"private_creator,omitempty"`
	Level          string `json:"level"`
}

// QueryTag is the indexing view of a tag: what to read from a dataset and
// where to write it.
type QueryTag struct {
	Tag                 tag.Tag
	VR                  string
	Level               QueryTagLevel
	Path                string
	PrivateCreator      string
	ExtendedQueryTagKey int
}

// NewQueryTag builds the indexing view of a registered tag.
func NewQueryTag(t *ExtendedQueryTag) (QueryTag, error) {
	parsed, err := ParseTagPath(t.TagPath)
	if err != nil {
		return QueryTag{}, err
	}
	q := QueryTag{
		Tag:                 parsed,
		VR:                  strings.ToUpper(t.TagVR),
		Level:               t.TagLevel,
		Path:                t.TagPath,
		ExtendedQueryTagKey: t.TagKey,
	}
	if t.TagPrivateCreator != nil {
		q.PrivateCreator = *t.TagPrivateCreator
	}
	return q, nil
}

// DataType returns the value table used for this tag.
func (q QueryTag) DataType() ExtendedQueryTagDataType {
	t, _ := DataTypeForVR(q.VR)
	return t
}

// FormatTagPath renders a tag as the 8 hex digit path stored in the index.
func FormatTagPath(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// ParseTagPath parses an 8 hex digit tag path.
func ParseTagPath(path string) (tag.Tag, error) {
	if len(path) != 8 {
		return tag.Tag{}, fmt.Errorf("invalid tag path %q", path)
	}
	group, err := strconv.ParseUint(path[0:4], 16, 16)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("invalid tag path %q: %w", path, err)
	}
	element, err := strconv.ParseUint(path[4:], 16, 16)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("invalid tag path %q: %w", path, err)
	}
	return tag.Tag{Group: uint16(group), Element: uint16(element)}, nil
}

// QueryTagKeys returns the extended query tag keys of tags.
func QueryTagKeys(tags []QueryTag) []int {
	keys := make([]int, 0, len(tags))
	for _, t := range tags {
		if t.ExtendedQueryTagKey != 0 {
			keys = append(keys, t.ExtendedQueryTagKey)
		}
	}
	return keys
}
