package store

import (
	"encoding/json"
	"fmt"
	"net/http"

	"dicom-object-store/models"
	"dicom-object-store/utils"
	"dicom-object-store/validator"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Failure and warning reasons of the store response.
const (
	FailureCodeProcessingFailure        = 272
	FailureCodeValidationFailure        = 43264
	FailureCodeMismatchStudyInstanceUID = 43265
	FailureCodeSOPInstanceAlreadyExists = 45070

	WarningCodeValidationWarnings = 45063
)

type Status int

const (
	StatusNoContent Status = iota
	StatusSuccess
	StatusPartialSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusPartialSuccess:
		return "PartialSuccess"
	case StatusFailure:
		return "Failure"
	default:
		return "NoContent"
	}
}

// HTTPStatus maps the aggregate status to the response code.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusSuccess:
		return http.StatusOK
	case StatusPartialSuccess:
		return http.StatusAccepted
	case StatusFailure:
		return http.StatusConflict
	default:
		return http.StatusNoContent
	}
}

type ReferencedSOP struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	RetrieveURL       string
	FailedAttributes  []validator.ElementError
	WarningReason     int
}

type FailedSOP struct {
	SOPInstanceUID string
	SOPClassUID    string
	FailureReason  int
}

// Response is the aggregate result of a store request.
type Response struct {
	Status     Status
	Referenced []ReferencedSOP
	Failed     []FailedSOP
}

func newResponse(results []InstanceResult) *Response {
	response := &Response{}
	for _, result := range results {
		if result.FailureCode != 0 {
			response.Failed = append(response.Failed, FailedSOP{
				SOPInstanceUID: result.Identifier.SOPInstanceUID,
				SOPClassUID:    result.SOPClassUID,
				FailureReason:  result.FailureCode,
			})
			continue
		}
		referenced := ReferencedSOP{
			StudyInstanceUID:  result.Identifier.StudyInstanceUID,
			SeriesInstanceUID: result.Identifier.SeriesInstanceUID,
			SOPInstanceUID:    result.Identifier.SOPInstanceUID,
			SOPClassUID:       result.SOPClassUID,
			FailedAttributes:  result.ElementErrors,
		}
		if len(result.ElementErrors) > 0 || len(result.Warnings) > 0 {
			referenced.WarningReason = WarningCodeValidationWarnings
		}
		response.Referenced = append(response.Referenced, referenced)
	}

	switch {
	case len(response.Referenced) == 0 && len(response.Failed) == 0:
		response.Status = StatusNoContent
	case len(response.Failed) == 0:
		response.Status = StatusSuccess
	case len(response.Referenced) == 0:
		response.Status = StatusFailure
	default:
		response.Status = StatusPartialSuccess
	}
	return response
}

// SetRetrieveURLs fills the retrieve URL of every referenced instance.
func (r *Response) SetRetrieveURLs(baseURL string) {
	for i := range r.Referenced {
		ref := &r.Referenced[i]
		ref.RetrieveURL = fmt.Sprintf("%s/studies/%s/series/%s/instances/%s",
			baseURL, ref.StudyInstanceUID, ref.SeriesInstanceUID, ref.SOPInstanceUID)
	}
}

var (
	tagOffendingElement         = tag.Tag{Group: 0x0000, Element: 0x0901}
	tagErrorComment             = tag.Tag{Group: 0x0000, Element: 0x0902}
	tagReferencedSOPClassUID    = tag.Tag{Group: 0x0008, Element: 0x1150}
	tagReferencedSOPInstanceUID = tag.Tag{Group: 0x0008, Element: 0x1155}
	tagRetrieveURL              = tag.Tag{Group: 0x0008, Element: 0x1190}
	tagWarningReason            = tag.Tag{Group: 0x0008, Element: 0x1196}
	tagFailureReason            = tag.Tag{Group: 0x0008, Element: 0x1197}
	tagFailedSOPSequence        = tag.Tag{Group: 0x0008, Element: 0x1198}
	tagReferencedSOPSequence    = tag.Tag{Group: 0x0008, Element: 0x1199}
	tagFailedAttributesSequence = tag.Tag{Group: 0x0074, Element: 0x1048}
)

func newResponseElement(t tag.Tag, vr string, data interface{}) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		return nil
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, vr),
		RawValueRepresentation: vr,
		Value:                  value,
	}
}

// Dataset renders the response as a DICOM dataset.
func (r *Response) Dataset() dicom.Dataset {
	var elements []*dicom.Element

	if len(r.Referenced) > 0 {
		items := make([][]*dicom.Element, 0, len(r.Referenced))
		for _, ref := range r.Referenced {
			item := []*dicom.Element{
				newResponseElement(tagReferencedSOPClassUID, "UI", []string{ref.SOPClassUID}),
				newResponseElement(tagReferencedSOPInstanceUID, "UI", []string{ref.SOPInstanceUID}),
			}
			if ref.RetrieveURL != "" {
				item = append(item, newResponseElement(tagRetrieveURL, "UR", []string{ref.RetrieveURL}))
			}
			if ref.WarningReason != 0 {
				item = append(item, newResponseElement(tagWarningReason, "US", []int{ref.WarningReason}))
			}
			if len(ref.FailedAttributes) > 0 {
				attributes := make([][]*dicom.Element, 0, len(ref.FailedAttributes))
				for _, failed := range ref.FailedAttributes {
					attributes = append(attributes, []*dicom.Element{
						newResponseElement(tagOffendingElement, "AT", []string{models.FormatTagPath(failed.Tag)}),
						newResponseElement(tagErrorComment, "LO", []string{failed.Error()}),
					})
				}
				item = append(item, newResponseElement(tagFailedAttributesSequence, "SQ", attributes))
			}
			items = append(items, item)
		}
		elements = append(elements, newResponseElement(tagReferencedSOPSequence, "SQ", items))
	}

	if len(r.Failed) > 0 {
		items := make([][]*dicom.Element, 0, len(r.Failed))
		for _, failed := range r.Failed {
			var item []*dicom.Element
			if failed.SOPClassUID != "" {
				item = append(item, newResponseElement(tagReferencedSOPClassUID, "UI", []string{failed.SOPClassUID}))
			}
			if failed.SOPInstanceUID != "" {
				item = append(item, newResponseElement(tagReferencedSOPInstanceUID, "UI", []string{failed.SOPInstanceUID}))
			}
			item = append(item, newResponseElement(tagFailureReason, "US", []int{failed.FailureReason}))
			items = append(items, item)
		}
		elements = append(elements, newResponseElement(tagFailedSOPSequence, "SQ", items))
	}

	return dicom.Dataset{Elements: elements}
}

// MarshalJSON renders the response in the DICOM JSON model.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(utils.FormatDicomJSON(r.Dataset().Elements))
}
