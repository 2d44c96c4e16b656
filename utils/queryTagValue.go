package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dicom-object-store/models"

	"github.com/suyashkumar/dicom"
)

// QueryTagValue is the first value of an indexed tag, converted to the
// column type of its value table.
type QueryTagValue struct {
	QueryTag   models.QueryTag
	String     string
	Long       int64
	Double     float64
	DateTime   time.Time
	PersonName PersonName
	// Raw is the padding-stripped textual value, kept for string and person
	// name tables.
	Raw string
}

var dateTimeLayouts = []string{
	"20060102150405-0700",
	"20060102150405",
	"200601021504",
	"2006010215",
	"20060102",
	"200601",
	"2006",
}

// ParseDicomDateTime parses DA and DT values. Fractional seconds are accepted
// after the seconds field.
func ParseDicomDateTime(value string) (time.Time, error) {
	value = TrimPadding(value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date time %q", value)
}

// GetQueryTagValue extracts the value of queryTag from dataset. It returns
// nil when the element is absent or empty.
func GetQueryTagValue(dataset dicom.Dataset, queryTag models.QueryTag) (*QueryTagValue, error) {
	element, err := dataset.FindElementByTag(queryTag.Tag)
	if err != nil || element.Value == nil {
		return nil, nil
	}

	result := &QueryTagValue{QueryTag: queryTag}
	switch queryTag.DataType() {
	case models.DataTypeLong:
		switch v := element.Value.GetValue().(type) {
		case []int:
			if len(v) == 0 {
				return nil, nil
			}
			result.Long = int64(v[0])
		case []string:
			first := firstValue(v)
			if first == "" {
				return nil, nil
			}
			parsed, err := strconv.ParseInt(first, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", queryTag.Path, err)
			}
			result.Long = parsed
		default:
			return nil, nil
		}
	case models.DataTypeDouble:
		switch v := element.Value.GetValue().(type) {
		case []float64:
			if len(v) == 0 {
				return nil, nil
			}
			result.Double = v[0]
		case []string:
			first := firstValue(v)
			if first == "" {
				return nil, nil
			}
			parsed, err := strconv.ParseFloat(first, 64)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", queryTag.Path, err)
			}
			result.Double = parsed
		default:
			return nil, nil
		}
	case models.DataTypeDateTime:
		first := firstValue(GetStringValues(element))
		if first == "" {
			return nil, nil
		}
		parsed, err := ParseDicomDateTime(first)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", queryTag.Path, err)
		}
		result.DateTime = parsed
		result.Raw = first
	case models.DataTypePersonName:
		first := firstValue(GetStringValues(element))
		if first == "" {
			return nil, nil
		}
		result.PersonName = ParsePersonName(first)
		result.Raw = first
	default:
		first := firstValue(GetStringValues(element))
		if first == "" {
			return nil, nil
		}
		result.String = first
		result.Raw = first
	}
	return result, nil
}

// GetQueryTagValues extracts every present value of queryTags. Tags whose
// value cannot be converted are returned in the second result.
func GetQueryTagValues(dataset dicom.Dataset, queryTags []models.QueryTag) ([]*QueryTagValue, []models.QueryTag) {
	var values []*QueryTagValue
	var invalid []models.QueryTag
	for _, queryTag := range queryTags {
		value, err := GetQueryTagValue(dataset, queryTag)
		if err != nil {
			invalid = append(invalid, queryTag)
			continue
		}
		if value != nil {
			values = append(values, value)
		}
	}
	return values, invalid
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(TrimPadding(values[0]))
}
