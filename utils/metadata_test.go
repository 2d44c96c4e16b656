package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestMarshalMetadata(t *testing.T) {
	ds := testDataset(t)
	ds.Elements = append(ds.Elements,
		mustElement(t, tag.Rows, []int{512}),
		mustElement(t, tag.PixelData, []byte{0x01, 0x02}),
	)

	data, err := MarshalMetadata(ds)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "PN", decoded["00100010"]["vr"])
	assert.Equal(t, []interface{}{map[string]interface{}{"Alphabetic": "Doe^Joe"}}, decoded["00100010"]["Value"])
	assert.Equal(t, []interface{}{"1.2.3"}, decoded["0020000D"]["Value"], "padding stripped")
	assert.Equal(t, []interface{}{float64(512)}, decoded["00280010"]["Value"])
	assert.NotContains(t, decoded, "7FE00010", "bulk data omitted")
}

func TestMetadataRoundTrip(t *testing.T) {
	item := []*dicom.Element{mustElement(t, tag.CodeValue, []string{"121"})}
	ds := testDataset(t)
	ds.Elements = append(ds.Elements,
		mustElement(t, tag.Rows, []int{512}),
		mustElement(t, tag.ProcedureCodeSequence, [][]*dicom.Element{item}),
	)

	data, err := MarshalMetadata(ds)
	require.NoError(t, err)

	parsed, err := UnmarshalMetadata(data)
	require.NoError(t, err)

	v, ok := GetFirstString(parsed, tag.PatientName)
	assert.True(t, ok)
	assert.Equal(t, "Doe^Joe", v)

	id := GetInstanceIdentifier(parsed, 1)
	assert.Equal(t, "1.2.3", id.StudyInstanceUID)
	assert.Equal(t, "1.2.3.4.5", id.SOPInstanceUID)

	rows, err := parsed.FindElementByTag(tag.Rows)
	require.NoError(t, err)
	assert.Equal(t, []int{512}, rows.Value.GetValue())

	sequence, err := parsed.FindElementByTag(tag.ProcedureCodeSequence)
	require.NoError(t, err)
	assert.Equal(t, dicom.Sequences, sequence.Value.ValueType())
	assert.Equal(t, 1, GetValueCount(sequence))

	again, err := MarshalMetadata(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestUnmarshalMetadataErrors(t *testing.T) {
	_, err := UnmarshalMetadata([]byte("not json"))
	assert.Error(t, err)

	_, err = UnmarshalMetadata([]byte(`{"0010":{"vr":"LO","Value":["x"]}}`))
	assert.Error(t, err)

	_, err = UnmarshalMetadata([]byte(`{"00280010":{"vr":"US","Value":["x"]}}`))
	assert.Error(t, err)
}
