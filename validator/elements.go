package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dicom-object-store/utils"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ElementValidator checks one value of an element against the syntax of its
// value representation.
type ElementValidator interface {
	Validate(value string) error
}

// ruleValidator applies ozzo-validation rules to a single value.
type ruleValidator struct {
	rules []validation.Rule
}

func (v ruleValidator) Validate(value string) error {
	return validation.Validate(value, v.rules...)
}

func rules(r ...validation.Rule) ElementValidator {
	return ruleValidator{rules: r}
}

var (
	defaultCharacterRepertoire = regexp.MustCompile(`^[^\\\x00-\x08\x0A-\x0C\x0E-\x1A\x1C-\x1F]*$`)
	applicationEntityPattern   = regexp.MustCompile(`^[\x20-\x5B\x5D-\x7E]*$`)
	codeStringPattern          = regexp.MustCompile(`^[A-Z0-9 _]*$`)
	agePattern                 = regexp.MustCompile(`^\d{3}[DWMY]$`)
	integerPattern             = regexp.MustCompile(`^[+-]?[0-9]+$`)
	timePattern                = regexp.MustCompile(`^([01]\d|2[0-3])([0-5]\d(([0-5]\d|60)(\.\d{1,6})?)?)?$`)
	uidPattern                 = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

var personNameRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	groups := strings.Split(s, "=")
	if len(groups) > 3 {
		return fmt.Errorf("person name has %d component groups, at most 3 allowed", len(groups))
	}
	for _, group := range groups {
		if len([]rune(group)) > 64 {
			return fmt.Errorf("person name component group exceeds 64 characters")
		}
		if components := strings.Split(group, "^"); len(components) > 5 {
			return fmt.Errorf("person name has %d components, at most 5 allowed", len(components))
		}
	}
	if !defaultCharacterRepertoire.MatchString(s) {
		return fmt.Errorf("person name contains invalid characters")
	}
	return nil
})

// integerRangeRule bounds IS values to a signed 32-bit integer.
var integerRangeRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 32); err != nil {
		return fmt.Errorf("must be within the range of a 32-bit integer")
	}
	return nil
})

var dateTimeRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := utils.ParseDicomDateTime(s); err != nil {
		return fmt.Errorf("must be a valid date time")
	}
	return nil
})

// elementValidators is the registry of VR validators. VRs without an entry
// are not checked.
var elementValidators = map[string]ElementValidator{
	"AE": rules(validation.Length(0, 16), validation.Match(applicationEntityPattern)),
	"AS": rules(validation.Match(agePattern)),
	"CS": rules(validation.Length(0, 16), validation.Match(codeStringPattern)),
	"DA": rules(validation.Date("20060102")),
	"DS": rules(validation.Length(0, 16), is.Float),
	"DT": rules(validation.Length(0, 26), dateTimeRule),
	"IS": rules(validation.Length(0, 12), validation.Match(integerPattern), integerRangeRule),
	"LO": rules(validation.Length(0, 64), validation.Match(defaultCharacterRepertoire)),
	"LT": rules(validation.Length(0, 10240)),
	"PN": rules(personNameRule),
	"SH": rules(validation.Length(0, 16), validation.Match(defaultCharacterRepertoire)),
	"ST": rules(validation.Length(0, 1024)),
	"TM": rules(validation.Length(0, 14), validation.Match(timePattern)),
	"UI": rules(validation.Length(0, 64), validation.Match(uidPattern)),
}

// ElementValidatorFor returns the validator registered for vr.
func ElementValidatorFor(vr string) (ElementValidator, bool) {
	v, ok := elementValidators[strings.ToUpper(vr)]
	return v, ok
}

// ValidateValue checks a single value against the rules of vr. Padding is
// stripped first, unknown VRs always pass.
func ValidateValue(vr, value string) error {
	v, ok := ElementValidatorFor(vr)
	if !ok {
		return nil
	}
	value = utils.TrimPadding(value)
	if vr == "DS" || vr == "IS" {
		value = strings.TrimSpace(value)
	}
	return v.Validate(value)
}

// ValidateUID checks a required UID value.
func ValidateUID(uid string) error {
	return validation.Validate(utils.TrimPadding(uid), validation.Required, validation.Length(0, 64), validation.Match(uidPattern))
}
