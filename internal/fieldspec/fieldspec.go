// Package fieldspec turns schema columns into field specifications: the
// control, binding path and constraints a form or a read-only view needs
// to render a column.
package fieldspec

import (
	"github.com/koustreak/tabula/internal/metadata"
)

// Mode selects between an editable form and a read-only display.
type Mode string

const (
	ModeEdit    Mode = "edit"
	ModeDisplay Mode = "display"
)

// ParseMode parses a mode name; anything but "display" is ModeEdit.
func ParseMode(s string) Mode {
	if Mode(s) == ModeDisplay {
		return ModeDisplay
	}
	return ModeEdit
}

// Kind is the widget a field renders as.
type Kind string

const (
	KindText     = Kind(metadata.ControlText)
	KindTextArea = Kind(metadata.ControlTextArea)
	KindNumber   = Kind(metadata.ControlNumber)
	KindCheckbox = Kind(metadata.ControlCheckbox)
	KindDate     = Kind(metadata.ControlDate)
	KindTime     = Kind(metadata.ControlTime)
	KindDateTime = Kind(metadata.ControlDateTime)
	KindEmail    = Kind(metadata.ControlEmail)
	KindURL      = Kind(metadata.ControlURL)
	KindPhone    = Kind(metadata.ControlPhone)
	KindPassword = Kind(metadata.ControlPassword)
	KindColor    = Kind(metadata.ControlColor)
	KindTags     = Kind(metadata.ControlTags)
	KindSelect   = Kind(metadata.ControlSelect)

	// KindDescriptive is a read-only text describing a value the user may
	// not change, such as the parent a child form is scoped to.
	KindDescriptive Kind = "descriptive"
)

// Constraints are the input rules of a field.
type Constraints struct {
	Required bool `json:"required"`
	// Pattern is the date/time input format.
	Pattern string `json:"pattern,omitempty"`
	// Precision is the number of decimal places for numeric input.
	Precision *int `json:"precision,omitempty"`
	// LiveValidate asks for validation on every change.
	LiveValidate bool `json:"live_validate,omitempty"`
	// Message is shown when the value fails its type check.
	Message string `json:"message,omitempty"`
}

// Option is one choice of a relation selector.
type Option struct {
	Key  any    `json:"key"`
	Text string `json:"text"`
}

// FieldSpec describes how to render and constrain one column.
type FieldSpec struct {
	Name        string              `json:"name"`
	Label       string              `json:"label"`
	Binding     string              `json:"binding"`
	Kind        Kind                `json:"kind"`
	Type        metadata.ColumnType `json:"type"`
	Visible     bool                `json:"visible"`
	ReadOnly    bool                `json:"read_only"`
	Relation    string              `json:"relation,omitempty"`
	Constraints Constraints         `json:"constraints"`

	// Options is set on relation selectors and fills in asynchronously.
	Options *OptionSet `json:"-"`
}

// BuildOptions tunes a single BuildFieldSpec call.
type BuildOptions struct {
	// Required forces the field to be required even if the column is not.
	Required bool

	// ParentForeignKey names the column that links this form to the parent
	// record it was opened from. That column renders as descriptive text.
	ParentForeignKey string

	Mode Mode
}

// BindingPath joins a binding prefix and a column name.
func BindingPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
