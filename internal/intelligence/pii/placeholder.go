package pii

import (
	"sort"
	"strconv"
	"strings"
)

// PlaceholderFormat names one of the supported placeholder styles.
type PlaceholderFormat string

const (
	FormatBrackets     PlaceholderFormat = "brackets"
	FormatAngles       PlaceholderFormat = "angles"
	FormatDoubleAngles PlaceholderFormat = "double_angles"
	FormatCurly        PlaceholderFormat = "curly"
	FormatCustom       PlaceholderFormat = "custom"
)

// placeholderTemplates hold the prefix, separator and suffix around
// LABEL and id.
var placeholderTemplates = map[PlaceholderFormat][3]string{
	FormatBrackets:     {"[", "_", "]"},
	FormatAngles:       {"<", "_", ">"},
	FormatDoubleAngles: {"<<", "#", ">>"},
	FormatCurly:        {"{", "_", "}"},
	FormatCustom:       {"***", "_", "***"},
}

// PlaceholderFormats lists the supported formats in a stable order.
func PlaceholderFormats() []PlaceholderFormat {
	out := make([]PlaceholderFormat, 0, len(placeholderTemplates))
	for f := range placeholderTemplates {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParsePlaceholderFormat validates name.  The empty string selects brackets.
func ParsePlaceholderFormat(name string) (PlaceholderFormat, error) {
	if name == "" {
		return FormatBrackets, nil
	}
	f := PlaceholderFormat(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := placeholderTemplates[f]; !ok {
		return "", ErrUnknownFormat.WithDetail("format=" + name)
	}
	return f, nil
}

// Render formats a placeholder, e.g. Render("NAME", 0) → "[NAME_0]" for
// brackets.  Unknown formats fall back to brackets.
func (f PlaceholderFormat) Render(label string, id int) string {
	t, ok := placeholderTemplates[f]
	if !ok {
		t = placeholderTemplates[FormatBrackets]
	}
	return t[0] + label + t[1] + strconv.Itoa(id) + t[2]
}

// DefaultLabelMapping translates detector labels to display labels.
var DefaultLabelMapping = map[string]string{
	"person":       "NAME",
	"organization": "COMPANY",
	"location":     "PLACE",
	"country":      "COUNTRY",
	"email":        "EMAIL",
	"phone_number": "PHONE",
	"birthdate":    "DOB",
	"address":      "ADDRESS",
}

// LabelMapper resolves display labels.  Unmapped labels are upper-cased.
type LabelMapper struct {
	mapping map[string]string
}

// NewLabelMapper builds a mapper; a nil mapping upper-cases every label.
func NewLabelMapper(mapping map[string]string) LabelMapper {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[strings.ToLower(k)] = strings.ToUpper(v)
	}
	return LabelMapper{mapping: m}
}

// Display returns the display label for label.
func (m LabelMapper) Display(label string) string {
	if v, ok := m.mapping[strings.ToLower(label)]; ok {
		return v
	}
	return strings.ToUpper(label)
}

//Personal.AI order the ending
