package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"dicom-object-store/models"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ExtractDicomObjectFromDataset fills the string and *string fields of object
// that carry a `dicom:"<keyword>"` struct tag. Missing or blank elements leave
// the field untouched, so *string fields stay nil.
func ExtractDicomObjectFromDataset(dataset dicom.Dataset, object models.DicomObject) {
	reflection := reflect.TypeOf(object).Elem()
	value := reflect.ValueOf(object).Elem()

	for i := 0; i < reflection.NumField(); i++ {
		field := reflection.Field(i)
		keyword := field.Tag.Get("dicom")
		if keyword == "" {
			continue
		}
		tagInfo, err := tag.FindByName(keyword)
		if err != nil {
			continue
		}
		stringValue, ok := GetFirstString(dataset, tagInfo.Tag)
		if !ok {
			continue
		}

		target := value.FieldByIndex(field.Index)
		switch target.Kind() {
		case reflect.String:
			target.SetString(stringValue)
		case reflect.Ptr:
			if target.Type().Elem().Kind() == reflect.String {
				v := stringValue
				target.Set(reflect.ValueOf(&v))
			}
		}
	}
}

// TrimPadding strips the trailing NUL / space padding DICOM uses to reach an
// even value length, plus leading spaces.
func TrimPadding(s string) string {
	return strings.TrimLeft(strings.TrimRight(s, "\x00 "), " ")
}

// GetStringValues returns the padding-stripped string values of element.
// Non-string elements return nil.
func GetStringValues(element *dicom.Element) []string {
	if element == nil || element.Value == nil || element.Value.ValueType() != dicom.Strings {
		return nil
	}
	raw, ok := element.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	values := make([]string, len(raw))
	for i, v := range raw {
		values[i] = TrimPadding(v)
	}
	return values
}

// GetFirstString returns the first non-empty value of a string element.
func GetFirstString(dataset dicom.Dataset, t tag.Tag) (string, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return "", false
	}
	values := GetStringValues(element)
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}

// GetInstanceIdentifier reads the identifier triple of dataset.
func GetInstanceIdentifier(dataset dicom.Dataset, partitionKey int) models.InstanceIdentifier {
	studyUID, _ := GetFirstString(dataset, tag.StudyInstanceUID)
	seriesUID, _ := GetFirstString(dataset, tag.SeriesInstanceUID)
	sopUID, _ := GetFirstString(dataset, tag.SOPInstanceUID)
	return models.InstanceIdentifier{
		PartitionKey:      partitionKey,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    sopUID,
	}
}

// GetValueCount returns the number of values held by element.
func GetValueCount(element *dicom.Element) int {
	if element == nil || element.Value == nil {
		return 0
	}
	switch v := element.Value.GetValue().(type) {
	case []string:
		return len(v)
	case []int:
		return len(v)
	case []float64:
		return len(v)
	case []*dicom.SequenceItemValue:
		return len(v)
	default:
		return 1
	}
}

// GetTagByNameOrCode resolves a keyword ("PatientName") or an 8 hex digit
// code ("00100010") to a dictionary tag.
func GetTagByNameOrCode(tagName string) (tag.Tag, error) {
	isCode, _ := regexp.MatchString(`^[a-fA-F0-9]{8}$`, tagName)
	var tagInfo tag.Info
	var err error

	if isCode {
		var group int64
		group, err = strconv.ParseInt(tagName[0:4], 16, 32)
		if err != nil {
			return tag.Tag{}, fmt.Errorf("invalid tag name or code %q", tagName)
		}
		var elem int64
		elem, err = strconv.ParseInt(tagName[4:], 16, 32)
		if err != nil {
			return tag.Tag{}, fmt.Errorf("invalid tag name or code %q", tagName)
		}
		t := tag.Tag{Group: uint16(group), Element: uint16(elem)}
		if t.Group%2 == 1 {
			// private tags are not in the dictionary
			return t, nil
		}
		tagInfo, err = tag.Find(t)
	} else {
		tagInfo, err = tag.FindByName(tagName)
	}

	if err != nil {
		return tag.Tag{}, fmt.Errorf("invalid tag name or code %q", tagName)
	}

	return tagInfo.Tag, nil
}
