package metadata

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Control is the input widget a column renders as.
type Control string

const (
	ControlText     Control = "text"
	ControlTextArea Control = "textarea"
	ControlNumber   Control = "number"
	ControlCheckbox Control = "checkbox"
	ControlDate     Control = "date"
	ControlTime     Control = "time"
	ControlDateTime Control = "datetime"
	ControlEmail    Control = "email"
	ControlURL      Control = "url"
	ControlPhone    Control = "tel"
	ControlPassword Control = "password"
	ControlColor    Control = "color"
	ControlTags     Control = "tags"
	ControlSelect   Control = "select"
)

// Trait is everything type-specific about a column: how it renders and how
// its values are checked. The field spec builder and the validator both
// read it, so each type's behaviour is defined once, here.
type Trait struct {
	Control Control

	// Format is the display/input pattern, e.g. "yyyy-MM-dd" for dates.
	Format string

	// Precision is the number of decimal places for numeric input, or -1
	// when the value is not numeric.
	Precision int

	// LiveValidate asks the form to validate on every change rather than
	// on submit.
	LiveValidate bool

	// Check reports whether a present value is acceptable. Nil means any
	// value is.
	Check func(v any) bool

	// Message is shown when Check fails.
	Message string
}

var traits = map[ColumnType]Trait{
	TypeString:   {Control: ControlText, Precision: -1},
	TypeText:     {Control: ControlTextArea, Precision: -1},
	TypeNumber:   {Control: ControlNumber, Precision: 2, LiveValidate: true, Check: IsNumber, Message: "Please enter a valid number"},
	TypeInteger:  {Control: ControlNumber, Precision: 0, LiveValidate: true, Check: IsNumber, Message: "Please enter a valid number"},
	TypeBoolean:  {Control: ControlCheckbox, Precision: -1},
	TypeDate:     {Control: ControlDate, Format: "yyyy-MM-dd", Precision: -1, Check: IsDate, Message: "Please enter a valid date"},
	TypeTime:     {Control: ControlTime, Format: "HH:mm:ss", Precision: -1},
	TypeDateTime: {Control: ControlDateTime, Format: "yyyy-MM-dd HH:mm:ss", Precision: -1, Check: IsDate, Message: "Please enter a valid date"},
	TypeEmail:    {Control: ControlEmail, Precision: -1, LiveValidate: true, Check: IsEmail, Message: "Please enter a valid email address"},
	TypeURL:      {Control: ControlURL, Precision: -1, LiveValidate: true, Check: IsURL, Message: "Please enter a valid URL"},
	TypePhone:    {Control: ControlPhone, Precision: -1},
	TypePassword: {Control: ControlPassword, Precision: -1},
	TypeColor:    {Control: ControlColor, Precision: -1},
	TypeTags:     {Control: ControlTags, Precision: -1},
	TypeRelation: {Control: ControlSelect, Precision: -1},
}

// TraitOf returns the trait of t. Unknown types behave like TypeString.
func TraitOf(t ColumnType) Trait {
	if tr, ok := traits[t]; ok {
		return tr
	}
	return traits[TypeString]
}

// IsNumber reports whether v is, or parses in full as, a finite number.
func IsNumber(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsInf(float64(n), 0) && !math.IsNaN(float64(n))
	case float64:
		return !math.IsInf(n, 0) && !math.IsNaN(n)
	case json.Number:
		return IsNumber(string(n))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	}
	return false
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05Z07:00",
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
}

// ParseDate parses s with the supported date and datetime layouts. Days
// outside their month (2024-02-30) are rejected.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDate reports whether v is a time or a string holding a valid calendar date.
func IsDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return !d.IsZero()
	case *time.Time:
		return d != nil && !d.IsZero()
	case string:
		_, ok := ParseDate(d)
		return ok
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail reports whether v is a string shaped like an email address.
func IsEmail(v any) bool {
	s, ok := v.(string)
	return ok && emailPattern.MatchString(s)
}

// IsURL reports whether v is a string starting with http:// or https://.
func IsURL(v any) bool {
	s, ok := v.(string)
	return ok && (strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"))
}
