package utils

import (
	"regexp"
	"strings"
)

var (
	wordBoundary    = regexp.MustCompile("(.)([A-Z][a-z]+)")
	acronymBoundary = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// ToSnakeCase turns a DICOM keyword into its index column name,
// e.g. PatientBirthDate -> patient_birth_date, PatientID -> patient_id.
func ToSnakeCase(keyword string) string {
	snake := wordBoundary.ReplaceAllString(keyword, "${1}_${2}")
	snake = acronymBoundary.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
