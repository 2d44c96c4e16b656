package utils

import "strings"

// PersonName is the alphabetic component group of a PN value split into its
// five components. Given holds given and middle names in order.
type PersonName struct {
	Family string
	Given  []string
	Prefix string
	Suffix string
}

// ParsePersonName parses "Family^Given^Middle^Prefix^Suffix". Only the
// alphabetic group (before the first '=') is considered.
func ParsePersonName(value string) PersonName {
	value = TrimPadding(value)
	if i := strings.IndexByte(value, '='); i >= 0 {
		value = value[:i]
	}
	components := strings.Split(value, "^")
	component := func(i int) string {
		if i < len(components) {
			return strings.TrimSpace(components[i])
		}
		return ""
	}

	name := PersonName{
		Family: component(0),
		Prefix: component(3),
		Suffix: component(4),
	}
	name.Given = append(name.Given, strings.Fields(component(1))...)
	name.Given = append(name.Given, strings.Fields(component(2))...)
	return name
}

// IsEmpty reports whether no component is set.
func (n PersonName) IsEmpty() bool {
	return n.Family == "" && len(n.Given) == 0 && n.Prefix == "" && n.Suffix == ""
}

// GivenNames joins the given names with a single space.
func (n PersonName) GivenNames() string {
	return strings.Join(n.Given, " ")
}
