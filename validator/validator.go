package validator

import (
	"errors"
	"fmt"
	"strings"

	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	ErrCoreTagMissing           = errors.New("required attribute is missing or empty")
	ErrDuplicatedIdentifier     = errors.New("study, series and sop instance uids must be distinct")
	ErrStudyInstanceUIDMismatch = errors.New("study instance uid does not match the requested study")
	ErrElementValidation        = errors.New("element failed validation")
)

// ImplicitVRLittleEndian is the only implicit VR transfer syntax.
const ImplicitVRLittleEndian = "1.2.840.10008.1.2"

type ValidationMode int

const (
	// ValidationModeFull checks every string element against its VR.
	ValidationModeFull ValidationMode = iota
	// ValidationModeMinimal checks core tags and indexed query tags only.
	ValidationModeMinimal
)

// ParseValidationMode maps "full" and "minimal" to a mode.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(s) {
	case "", "full":
		return ValidationModeFull, nil
	case "minimal":
		return ValidationModeMinimal, nil
	default:
		return 0, fmt.Errorf("unknown validation mode %q", s)
	}
}

type Options struct {
	Mode ValidationMode
	// DropInvalidQueryTags skips indexing of query tags whose value fails
	// validation instead of failing the dataset.
	DropInvalidQueryTags bool
}

type Warning string

const (
	WarningIndexedTagHasMultipleValues Warning = "IndexedTagHasMultipleValues"
	WarningImplicitVRTransferSyntax    Warning = "ImplicitVRTransferSyntax"
)

// ElementError is a validation failure of one element.
type ElementError struct {
	Tag tag.Tag
	VR  string
	Err error
}

func (e ElementError) Error() string {
	return fmt.Sprintf("%s (%s): %v", models.FormatTagPath(e.Tag), e.VR, e.Err)
}

// Result of a dataset validation. Err is nil when the dataset can be stored.
type Result struct {
	Err           error
	ElementErrors []ElementError
	Warnings      []Warning
	// QueryTags are the query tags to index for this dataset.
	QueryTags []models.QueryTag
	// DroppedQueryTags failed validation and are not indexed.
	DroppedQueryTags []models.QueryTag
}

func (r *Result) Valid() bool {
	return r.Err == nil
}

func (r *Result) fail(err error) *Result {
	if r.Err == nil {
		r.Err = err
	}
	return r
}

func (r *Result) warn(w Warning) {
	for _, existing := range r.Warnings {
		if existing == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}

var coreTags = []tag.Tag{
	tag.PatientID,
	tag.StudyInstanceUID,
	tag.SeriesInstanceUID,
	tag.SOPInstanceUID,
	tag.SOPClassUID,
}

func isCoreTag(t tag.Tag) bool {
	for _, c := range coreTags {
		if c == t {
			return true
		}
	}
	return false
}

// IsCoreTag reports whether t identifies an instance and can never be
// registered as an extended query tag.
func IsCoreTag(t tag.Tag) bool {
	return isCoreTag(t)
}

// Validate checks dataset before it is stored. requiredStudyInstanceUID is
// optional. The function has no side effects.
func Validate(dataset dicom.Dataset, requiredStudyInstanceUID string, queryTags []models.QueryTag, opts Options) *Result {
	result := &Result{}

	values := make(map[tag.Tag]string, len(coreTags))
	for _, t := range coreTags {
		v, ok := utils.GetFirstString(dataset, t)
		if !ok {
			return result.fail(fmt.Errorf("%w: %s", ErrCoreTagMissing, models.FormatTagPath(t)))
		}
		values[t] = v
	}

	studyUID := values[tag.StudyInstanceUID]
	seriesUID := values[tag.SeriesInstanceUID]
	sopUID := values[tag.SOPInstanceUID]
	if studyUID == seriesUID || studyUID == sopUID || seriesUID == sopUID {
		return result.fail(ErrDuplicatedIdentifier)
	}

	if required := utils.TrimPadding(requiredStudyInstanceUID); required != "" && !strings.EqualFold(required, studyUID) {
		return result.fail(ErrStudyInstanceUIDMismatch)
	}

	for _, t := range coreTags {
		element, _ := dataset.FindElementByTag(t)
		if err := validateElement(element); err != nil {
			result.ElementErrors = append(result.ElementErrors, *err)
			return result.fail(fmt.Errorf("%w: %v", ErrElementValidation, err))
		}
	}

	indexed := make(map[tag.Tag]bool, len(queryTags))
	for _, queryTag := range queryTags {
		indexed[queryTag.Tag] = true
		if !validateQueryTag(dataset, queryTag, opts, result) {
			return result
		}
	}

	if opts.Mode == ValidationModeFull {
		for _, element := range dataset.Elements {
			if isCoreTag(element.Tag) || indexed[element.Tag] {
				continue
			}
			if err := validateElement(element); err != nil {
				result.ElementErrors = append(result.ElementErrors, *err)
			}
		}
	}

	if ts, ok := utils.GetFirstString(dataset, tag.TransferSyntaxUID); ok && ts == ImplicitVRLittleEndian {
		result.warn(WarningImplicitVRTransferSyntax)
	}

	return result
}

// validateQueryTag checks one indexed tag. It returns false when the dataset
// has failed.
func validateQueryTag(dataset dicom.Dataset, queryTag models.QueryTag, opts Options, result *Result) bool {
	element, err := dataset.FindElementByTag(queryTag.Tag)
	if err != nil {
		result.QueryTags = append(result.QueryTags, queryTag)
		return true
	}

	if vr := element.RawValueRepresentation; vr != "" && queryTag.VR != "" && !strings.EqualFold(vr, queryTag.VR) {
		elementErr := ElementError{
			Tag: queryTag.Tag,
			VR:  vr,
			Err: fmt.Errorf("value representation %s does not match registered %s", vr, queryTag.VR),
		}
		result.ElementErrors = append(result.ElementErrors, elementErr)
		result.fail(fmt.Errorf("%w: %v", ErrElementValidation, elementErr))
		return false
	}

	if utils.GetValueCount(element) > 1 {
		result.warn(WarningIndexedTagHasMultipleValues)
	}

	var elementErr *ElementError
	if element.Value != nil && element.Value.ValueType() == dicom.Strings {
		values := utils.GetStringValues(element)
		if len(values) > 0 {
			if err := ValidateValue(queryTag.VR, values[0]); err != nil {
				elementErr = &ElementError{Tag: queryTag.Tag, VR: queryTag.VR, Err: err}
			}
		}
	}
	if elementErr == nil {
		if _, err := utils.GetQueryTagValue(dataset, queryTag); err != nil {
			elementErr = &ElementError{Tag: queryTag.Tag, VR: queryTag.VR, Err: err}
		}
	}

	if elementErr == nil {
		result.QueryTags = append(result.QueryTags, queryTag)
		return true
	}

	result.ElementErrors = append(result.ElementErrors, *elementErr)
	if opts.DropInvalidQueryTags {
		result.DroppedQueryTags = append(result.DroppedQueryTags, queryTag)
		return true
	}
	result.fail(fmt.Errorf("%w: %v", ErrElementValidation, elementErr))
	return false
}

func validateElement(element *dicom.Element) *ElementError {
	if element == nil || element.Value == nil || element.Value.ValueType() != dicom.Strings {
		return nil
	}
	vr := element.RawValueRepresentation
	for _, value := range utils.GetStringValues(element) {
		if err := ValidateValue(vr, value); err != nil {
			return &ElementError{Tag: element.Tag, VR: vr, Err: err}
		}
	}
	return nil
}
