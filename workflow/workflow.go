// Package workflow defines the data model and state machines for
// step-based approval workflows: ordered data-collection steps gated by
// validation, followed by an ordered chain of approval stages.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DataKind is the data "shape" of a workflow step.
type DataKind uint

const (
	// Step data is one required field.
	// This is the default kind (0 value).
	KindSingle DataKind = iota

	// Step data is a list of named items, each filled in independently.
	KindChecklist

	// Step data is partitioned by sub-unit (room number, device ID, etc.).
	KindPerSubUnit

	maxDataKind
)

func (k DataKind) Valid() bool {
	return k < maxDataKind
}

func (k DataKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindChecklist:
		return "checklist"
	case KindPerSubUnit:
		return "per_sub_unit"
	default:
		return fmt.Sprintf("unknown data kind: %d", uint(k))
	}
}

func DataKindForString(s string) DataKind {
	switch s {
	case "single":
		return KindSingle
	case "checklist":
		return KindChecklist
	case "per_sub_unit":
		return KindPerSubUnit
	default:
		return maxDataKind
	}
}

// MarshalJSON encodes the kind as its string name.
func (k DataKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDataKind, uint(k))
	}
	return json.Marshal(k.String())
}

func (k *DataKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	kind := DataKindForString(s)
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDataKind, s)
	}
	*k = kind
	return nil
}

// FieldKind is the value type of a declared field.
type FieldKind uint

const (
	// Field is filled when its string value is non-empty.
	// This is the default kind (0 value).
	FieldString FieldKind = iota

	// Field is filled when its boolean is explicitly set.
	// A false value counts as filled; only an unset one does not.
	FieldBool

	maxFieldKind
)

func (k FieldKind) Valid() bool {
	return k < maxFieldKind
}

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldBool:
		return "bool"
	default:
		return fmt.Sprintf("unknown field kind: %d", uint(k))
	}
}

func FieldKindForString(s string) FieldKind {
	switch s {
	case "string":
		return FieldString
	case "bool":
		return FieldBool
	default:
		return maxFieldKind
	}
}

// MarshalJSON encodes the kind as its string name.
func (k FieldKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFieldKind, uint(k))
	}
	return json.Marshal(k.String())
}

func (k *FieldKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	kind := FieldKindForString(s)
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFieldKind, s)
	}
	*k = kind
	return nil
}

// FieldKey declares one required datum of a step or category.
type FieldKey struct {
	Key  string    `json:"key"`
	Kind FieldKind `json:"kind"`
}

// Category groups the per-sub-unit data requirements of a PerSubUnit step.
type Category struct {
	Name string `json:"name"`

	// minimum number of media assets per sub-unit. zero means one.
	MinMedia int `json:"min_media,omitempty"`

	// parameters required for each sub-unit in this category.
	Params []FieldKey `json:"params,omitempty"`
}

// StepDefinition describes one ordered data-collection step of a template.
// Step definitions are immutable once a template is registered.
type StepDefinition struct {
	Name string   `json:"name"`
	Kind DataKind `json:"kind"`

	// required fields for Single (exactly one) and Checklist kinds.
	Fields []FieldKey `json:"fields,omitempty"`

	// required categories for the PerSubUnit kind.
	Categories []Category `json:"categories,omitempty"`
}

var (
	ErrEmptyTemplate    = errors.New("empty template")
	ErrMissingName      = errors.New("missing template name")
	ErrNoStages         = errors.New("no approval stages")
	ErrInvalidDataKind  = errors.New("invalid data kind")
	ErrInvalidFieldKind = errors.New("invalid field kind")
)

// Template is the immutable definition of one workflow kind: its ordered
// data-collection steps and its ordered approval stages.
// Stage count is data, not a constant: different kinds run one, two, or
// four review stages over the same machinery.
type Template struct {
	// Name of the template; reverse-DNS style by convention.
	// This string is generally used to route units of work to this template.
	Name string `json:"name"`

	Steps []StepDefinition `json:"steps"`

	// ordered approval stage names; length must be at least one.
	Stages []string `json:"stages"`
}

// Valid checks the structural validity of the template.
func (t *Template) Valid() error {
	if t == nil {
		return ErrEmptyTemplate
	}
	if t.Name == "" {
		return ErrMissingName
	}
	if len(t.Stages) < 1 {
		return fmt.Errorf("%w: %s", ErrNoStages, t.Name)
	}
	for i, sd := range t.Steps {
		if sd.Name == "" {
			return fmt.Errorf("step %d: missing step name", i)
		}
		if !sd.Kind.Valid() {
			return fmt.Errorf("step %d (%s): %w: %d", i, sd.Name, ErrInvalidDataKind, uint(sd.Kind))
		}
		switch sd.Kind {
		case KindSingle:
			if len(sd.Fields) != 1 {
				return fmt.Errorf("step %d (%s): single kind requires exactly one field", i, sd.Name)
			}
		case KindChecklist:
			if len(sd.Fields) < 1 {
				return fmt.Errorf("step %d (%s): checklist kind requires fields", i, sd.Name)
			}
		case KindPerSubUnit:
			if len(sd.Fields) > 0 {
				return fmt.Errorf("step %d (%s): per-sub-unit kind does not use fields", i, sd.Name)
			}
		}
		for _, f := range sd.Fields {
			if f.Key == "" {
				return fmt.Errorf("step %d (%s): missing field key", i, sd.Name)
			}
			if !f.Kind.Valid() {
				return fmt.Errorf("step %d (%s): field %s: %w", i, sd.Name, f.Key, ErrInvalidFieldKind)
			}
		}
		for _, c := range sd.Categories {
			if c.Name == "" {
				return fmt.Errorf("step %d (%s): missing category name", i, sd.Name)
			}
			for _, p := range c.Params {
				if p.Key == "" {
					return fmt.Errorf("step %d (%s): category %s: missing param key", i, sd.Name, c.Name)
				}
				if !p.Kind.Valid() {
					return fmt.Errorf("step %d (%s): category %s: param %s: %w", i, sd.Name, c.Name, p.Key, ErrInvalidFieldKind)
				}
			}
		}
	}
	return nil
}
