package template

import "strings"

// FieldType governs how an item is answered and when it counts as complete.
type FieldType string

const (
	FieldTask           FieldType = "task"
	FieldOptionSelect   FieldType = "option_select"
	FieldSingleAnswer   FieldType = "single_answer"
	FieldMultipleAnswer FieldType = "multiple_answer"
	FieldDropdown       FieldType = "dropdown"
	FieldShortAnswer    FieldType = "short_answer"
	FieldLongAnswer     FieldType = "long_answer"
	FieldNumber         FieldType = "number"
	FieldDate           FieldType = "date"
	FieldTime           FieldType = "time"
	FieldDescription    FieldType = "description"
	FieldScanCode       FieldType = "scan_code"
	FieldSignature      FieldType = "signature"
	FieldImageUpload    FieldType = "image_upload"
	FieldSection        FieldType = "section"
	FieldSubSection     FieldType = "sub_section"
)

// FieldTypes lists every field type.
var FieldTypes = []FieldType{
	FieldTask, FieldOptionSelect, FieldSingleAnswer, FieldMultipleAnswer,
	FieldDropdown, FieldShortAnswer, FieldLongAnswer, FieldNumber, FieldDate,
	FieldTime, FieldDescription, FieldScanCode, FieldSignature,
	FieldImageUpload, FieldSection, FieldSubSection,
}

// inputTypeAliases maps raw hints from older templates onto field types.
var inputTypeAliases = map[string]FieldType{
	"text":       FieldShortAnswer,
	"textarea":   FieldLongAnswer,
	"paragraph":  FieldLongAnswer,
	"photo":      FieldImageUpload,
	"image":      FieldImageUpload,
	"checkbox":   FieldMultipleAnswer,
	"checkboxes": FieldMultipleAnswer,
	"select":     FieldDropdown,
	"radio":      FieldSingleAnswer,
	"barcode":    FieldScanCode,
	"qr":         FieldScanCode,
	"numeric":    FieldNumber,
	"header":     FieldSection,
	"subheader":  FieldSubSection,
}

type matchField int

const (
	matchTitle matchField = iota
	matchCategory
)

type legacyRule struct {
	field   matchField
	pattern string
	result  FieldType
	// exact compares the trimmed subject instead of searching it.
	exact bool
	// bare restricts the rule to items without options.
	bare bool
}

// legacyRules are evaluated top to bottom; the first match wins.
var legacyRules = []legacyRule{
	{field: matchTitle, pattern: "signature", result: FieldSignature},
	{field: matchTitle, pattern: "manager on duty", result: FieldShortAnswer},
	{field: matchTitle, pattern: "average (auto)", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "attempt 1", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "attempt 2", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "attempt 3", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "attempt 4", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "attempt 5", result: FieldNumber, exact: true},
	{field: matchTitle, pattern: "photo", result: FieldImageUpload, bare: true},
	{field: matchTitle, pattern: "barcode", result: FieldScanCode, bare: true},
	{field: matchCategory, pattern: "signature", result: FieldSignature},
	{field: matchCategory, pattern: "sign-off", result: FieldSignature},
	{field: matchCategory, pattern: "comments", result: FieldLongAnswer},
}

func (r legacyRule) matches(subject string, hasOptions bool) bool {
	if r.bare && hasOptions {
		return false
	}
	if r.exact {
		return strings.TrimSpace(subject) == r.pattern
	}
	return strings.Contains(subject, r.pattern)
}

// ParseFieldType normalises a raw input-type hint. It returns false for
// empty, "auto" and unrecognised hints.
func ParseFieldType(raw string) (FieldType, bool) {
	hint := strings.ToLower(strings.TrimSpace(raw))
	hint = strings.ReplaceAll(hint, "-", "_")
	hint = strings.ReplaceAll(hint, " ", "_")
	if hint == "" || hint == "auto" {
		return "", false
	}
	for _, ft := range FieldTypes {
		if string(ft) == hint {
			return ft, true
		}
	}
	if ft, ok := inputTypeAliases[hint]; ok {
		return ft, true
	}
	return "", false
}

// Classify assigns the field type for an item. Every other component reads
// field semantics from here.
func Classify(item ChecklistItem) FieldType {
	if ft, ok := ParseFieldType(item.InputType); ok {
		return ft
	}

	title := strings.ToLower(item.Title)
	category := strings.ToLower(item.Category)
	for _, rule := range legacyRules {
		subject := title
		if rule.field == matchCategory {
			subject = category
		}
		if rule.matches(subject, len(item.Options) > 0) {
			return rule.result
		}
	}

	if len(item.Options) > 0 {
		return FieldOptionSelect
	}
	return FieldTask
}

// IsAnswerable reports whether items of this type collect a response.
// Section headers only structure the checklist.
func IsAnswerable(ft FieldType) bool {
	switch ft {
	case FieldSection, FieldSubSection:
		return false
	default:
		return true
	}
}

// IsOptionType reports whether the field is answered by picking one option.
func IsOptionType(ft FieldType) bool {
	switch ft {
	case FieldOptionSelect, FieldDropdown, FieldSingleAnswer:
		return true
	default:
		return false
	}
}

// IsTextType reports whether the field is answered with free text.
func IsTextType(ft FieldType) bool {
	switch ft {
	case FieldShortAnswer, FieldLongAnswer, FieldNumber, FieldDate, FieldTime,
		FieldDescription, FieldScanCode, FieldSignature:
		return true
	default:
		return false
	}
}
