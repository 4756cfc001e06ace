package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// AssetRef is an opaque identifier/URL returned by the external asset
// service for uploaded media. The engine never inspects asset bytes.
type AssetRef string

// FieldValue holds one field datum: a string, or an explicitly set boolean.
// The two are distinguished so that a false checklist value still counts
// as filled.
type FieldValue struct {
	Str     string
	Bool    bool
	BoolSet bool
}

// StringValue returns a string field value.
func StringValue(s string) FieldValue {
	return FieldValue{Str: s}
}

// BoolValue returns an explicitly set boolean field value.
func BoolValue(b bool) FieldValue {
	return FieldValue{Bool: b, BoolSet: true}
}

// Filled reports whether the value satisfies a field of the given kind.
func (v FieldValue) Filled(kind FieldKind) bool {
	if kind == FieldBool {
		return v.BoolSet
	}
	return v.Str != ""
}

// MarshalJSON encodes the value as a bare JSON bool or string.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.BoolSet {
		return json.Marshal(v.Bool)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts the canonical bare bool/string forms as well as
// two legacy client forms: a bare number, and the wrapped object form
// {"value": ...}. All are normalized here so nothing downstream ever
// branches on payload shape.
func (v *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) < 1 {
		return errors.New("empty field value")
	}
	switch b[0] {
	case '{':
		var legacy struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(b, &legacy); err != nil {
			return err
		}
		if len(legacy.Value) < 1 {
			*v = FieldValue{}
			return nil
		}
		return v.UnmarshalJSON(legacy.Value)
	case 't', 'f':
		v.Str = ""
		v.BoolSet = true
		return json.Unmarshal(b, &v.Bool)
	case 'n':
		*v = FieldValue{}
		return nil
	case '"':
		*v = FieldValue{}
		return json.Unmarshal(b, &v.Str)
	default:
		// bare number; keep its literal form as the string value
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = FieldValue{Str: n.String()}
		return nil
	}
}

// CategoryData is the media and parameters collected for one category of
// one sub-unit.
type CategoryData struct {
	Media  []AssetRef            `json:"media,omitempty"`
	Params map[string]FieldValue `json:"params,omitempty"`
}

// SubUnitRecord is the per-category data collected for one sub-unit.
// Keyed by the owning payload; not independently lifecycled.
type SubUnitRecord struct {
	PerCategory map[string]*CategoryData `json:"categories,omitempty"`
}

// Payload is the tagged step-data variant. Fields is used by the Single
// and Checklist kinds, SubUnits by the PerSubUnit kind.
type Payload struct {
	Kind     DataKind                  `json:"kind"`
	Fields   map[string]FieldValue     `json:"fields,omitempty"`
	SubUnits map[string]*SubUnitRecord `json:"sub_units,omitempty"`
}

// NewPayload creates an empty payload of kind.
func NewPayload(kind DataKind) *Payload {
	return &Payload{Kind: kind}
}

// UnmarshalJSON decodes a payload, normalizing the legacy array-of-records
// sub-unit form (records carrying a "sub_unit_id") to the keyed-object form.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var aux struct {
		Kind     DataKind              `json:"kind"`
		Fields   map[string]FieldValue `json:"fields"`
		SubUnits json.RawMessage       `json:"sub_units"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Kind = aux.Kind
	p.Fields = aux.Fields
	p.SubUnits = nil
	su := bytes.TrimSpace(aux.SubUnits)
	if len(su) < 1 || bytes.Equal(su, []byte("null")) {
		return nil
	}
	if su[0] != '[' {
		return json.Unmarshal(su, &p.SubUnits)
	}
	var recs []struct {
		ID string `json:"sub_unit_id"`
		SubUnitRecord
	}
	if err := json.Unmarshal(su, &recs); err != nil {
		return err
	}
	p.SubUnits = make(map[string]*SubUnitRecord, len(recs))
	for _, r := range recs {
		if r.ID == "" {
			return errors.New("sub-unit record missing sub_unit_id")
		}
		rec := r.SubUnitRecord
		p.SubUnits[r.ID] = &rec
	}
	return nil
}

// Merge applies patch to p additively: field and parameter values are set
// per key and media is appended. Sibling fields, categories, and sub-units
// not named in the patch are never touched.
func (p *Payload) Merge(patch *Payload) error {
	if patch == nil {
		return nil
	}
	if patch.Kind != p.Kind {
		return fmt.Errorf("%w: have %s, patch %s", ErrKindMismatch, p.Kind, patch.Kind)
	}
	if p.Kind == KindPerSubUnit {
		for id, rec := range patch.SubUnits {
			if rec == nil {
				continue
			}
			if p.SubUnits == nil {
				p.SubUnits = make(map[string]*SubUnitRecord)
			}
			into := p.SubUnits[id]
			if into == nil {
				into = new(SubUnitRecord)
				p.SubUnits[id] = into
			}
			into.merge(rec)
		}
		return nil
	}
	for k, v := range patch.Fields {
		if p.Fields == nil {
			p.Fields = make(map[string]FieldValue)
		}
		p.Fields[k] = v
	}
	return nil
}

func (r *SubUnitRecord) merge(patch *SubUnitRecord) {
	for name, cd := range patch.PerCategory {
		if cd == nil {
			continue
		}
		if r.PerCategory == nil {
			r.PerCategory = make(map[string]*CategoryData)
		}
		into := r.PerCategory[name]
		if into == nil {
			into = new(CategoryData)
			r.PerCategory[name] = into
		}
		into.Media = append(into.Media, cd.Media...)
		for k, v := range cd.Params {
			if into.Params == nil {
				into.Params = make(map[string]FieldValue)
			}
			into.Params[k] = v
		}
	}
}
