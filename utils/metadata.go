package utils

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dicom-object-store/models"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

type metadataAttribute struct {
	VR    string        `json:"vr"`
	Value []interface{} `json:"Value,omitempty"`
}

type rawMetadataAttribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

type personNameValue struct {
	Alphabetic string `json:"Alphabetic,omitempty"`
}

// FormatDicomJSON converts elements to the DICOM JSON model keyed by
// "GGGGEEEE". Bulk data (pixel data, binary values) is left out.
func FormatDicomJSON(elements []*dicom.Element) map[string]interface{} {
	formatted := make(map[string]interface{}, len(elements))
	for _, element := range elements {
		if element == nil || element.Value == nil {
			continue
		}
		vr := element.RawValueRepresentation
		if vr == "" {
			if info, err := tag.Find(element.Tag); err == nil {
				vr = info.VR
			}
		}

		attribute := metadataAttribute{VR: vr}
		switch element.Value.ValueType() {
		case dicom.Strings:
			for _, v := range GetStringValues(element) {
				if vr == "PN" {
					attribute.Value = append(attribute.Value, personNameValue{Alphabetic: v})
				} else {
					attribute.Value = append(attribute.Value, v)
				}
			}
		case dicom.Ints:
			for _, v := range element.Value.GetValue().([]int) {
				attribute.Value = append(attribute.Value, v)
			}
		case dicom.Floats:
			for _, v := range element.Value.GetValue().([]float64) {
				attribute.Value = append(attribute.Value, v)
			}
		case dicom.Sequences:
			for _, item := range element.Value.GetValue().([]*dicom.SequenceItemValue) {
				nested, _ := item.GetValue().([]*dicom.Element)
				attribute.Value = append(attribute.Value, FormatDicomJSON(nested))
			}
		default:
			continue
		}
		formatted[fmt.Sprintf("%04X%04X", element.Tag.Group, element.Tag.Element)] = attribute
	}
	return formatted
}

// MarshalMetadata serializes dataset as DICOM JSON without bulk data.
func MarshalMetadata(dataset dicom.Dataset) ([]byte, error) {
	return json.Marshal(FormatDicomJSON(dataset.Elements))
}

// UnmarshalMetadata parses DICOM JSON written by MarshalMetadata back into a
// dataset. Elements are ordered by tag.
func UnmarshalMetadata(data []byte) (dicom.Dataset, error) {
	var raw map[string]rawMetadataAttribute
	if err := json.Unmarshal(data, &raw); err != nil {
		return dicom.Dataset{}, fmt.Errorf("decode metadata: %w", err)
	}
	elements, err := parseDicomJSON(raw)
	if err != nil {
		return dicom.Dataset{}, err
	}
	return dicom.Dataset{Elements: elements}, nil
}

func parseDicomJSON(raw map[string]rawMetadataAttribute) ([]*dicom.Element, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	elements := make([]*dicom.Element, 0, len(keys))
	for _, key := range keys {
		attribute := raw[key]
		t, err := parseTagKey(key)
		if err != nil {
			return nil, err
		}
		data, err := decodeAttributeValue(attribute)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		value, err := dicom.NewValue(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		elements = append(elements, &dicom.Element{
			Tag:                    t,
			ValueRepresentation:    tag.GetVRKind(t, attribute.VR),
			RawValueRepresentation: attribute.VR,
			Value:                  value,
		})
	}
	return elements, nil
}

func decodeAttributeValue(attribute rawMetadataAttribute) (interface{}, error) {
	switch strings.ToUpper(attribute.VR) {
	case "SQ":
		items := make([][]*dicom.Element, 0, len(attribute.Value))
		for _, rawItem := range attribute.Value {
			var item map[string]rawMetadataAttribute
			if err := json.Unmarshal(rawItem, &item); err != nil {
				return nil, err
			}
			nested, err := parseDicomJSON(item)
			if err != nil {
				return nil, err
			}
			items = append(items, nested)
		}
		return items, nil
	case "US", "UL", "SS", "SL":
		ints := make([]int, 0, len(attribute.Value))
		for _, v := range attribute.Value {
			var i int
			if err := json.Unmarshal(v, &i); err != nil {
				return nil, err
			}
			ints = append(ints, i)
		}
		return ints, nil
	case "FL", "FD":
		floats := make([]float64, 0, len(attribute.Value))
		for _, v := range attribute.Value {
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return nil, err
			}
			floats = append(floats, f)
		}
		return floats, nil
	case "PN":
		names := make([]string, 0, len(attribute.Value))
		for _, v := range attribute.Value {
			var pn personNameValue
			if err := json.Unmarshal(v, &pn); err != nil {
				return nil, err
			}
			names = append(names, pn.Alphabetic)
		}
		return names, nil
	default:
		strs := make([]string, 0, len(attribute.Value))
		for _, v := range attribute.Value {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, err
			}
			strs = append(strs, s)
		}
		return strs, nil
	}
}

func parseTagKey(key string) (tag.Tag, error) {
	t, err := models.ParseTagPath(key)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("invalid attribute key %q", key)
	}
	return t, nil
}
