package workflow

import "testing"

func perSubUnitDef() *StepDefinition {
	return &StepDefinition{
		Name: "device_install",
		Kind: KindPerSubUnit,
		Categories: []Category{
			{Name: "gateway", Params: []FieldKey{{Key: "sn", Kind: FieldString}}},
			{Name: "terminal"},
		},
	}
}

func TestIsStepValidSingle(t *testing.T) {
	def := &StepDefinition{
		Name:   "acceptance",
		Kind:   KindSingle,
		Fields: []FieldKey{{Key: "doc", Kind: FieldString}},
	}
	if IsStepValid(def, nil, nil) {
		t.Error("nil payload should be invalid")
	}
	p := NewPayload(KindSingle)
	p.Fields = map[string]FieldValue{"doc": StringValue("")}
	if IsStepValid(def, p, nil) {
		t.Error("empty string should be invalid")
	}
	p.Fields["doc"] = StringValue("ref-9")
	if !IsStepValid(def, p, nil) {
		t.Error("filled field should be valid")
	}
}

func TestIsStepValidChecklist(t *testing.T) {
	def := &StepDefinition{
		Name: "network",
		Kind: KindChecklist,
		Fields: []FieldKey{
			{Key: "ssid", Kind: FieldString},
			{Key: "verified", Kind: FieldBool},
		},
	}
	p := NewPayload(KindChecklist)
	p.Fields = map[string]FieldValue{"ssid": StringValue("guest")}
	if IsStepValid(def, p, nil) {
		t.Error("undefined bool item should be invalid")
	}
	p.Fields["verified"] = BoolValue(false)
	// false is defined, so the checklist is complete
	if !IsStepValid(def, p, nil) {
		t.Errorf("explicit false should validate; missing: %v", Missing(def, p, nil))
	}
}

func TestIsStepValidPerSubUnit(t *testing.T) {
	def := perSubUnitDef()
	subUnits := []string{"101", "102"}

	// idempotent re-validation: same payload, same result
	if IsStepValid(def, nil, subUnits) || IsStepValid(def, nil, subUnits) {
		t.Error("empty payload should be invalid for known sub-units")
	}

	p := NewPayload(KindPerSubUnit)
	p.SubUnits = map[string]*SubUnitRecord{
		"101": {PerCategory: map[string]*CategoryData{
			"gateway":  {Media: []AssetRef{"ref-1"}, Params: map[string]FieldValue{"sn": StringValue("SN-1")}},
			"terminal": {Media: []AssetRef{"ref-2"}},
		}},
		"102": {PerCategory: map[string]*CategoryData{
			"gateway": {Media: []AssetRef{"ref-3"}, Params: map[string]FieldValue{"sn": StringValue("SN-2")}},
		}},
	}
	if IsStepValid(def, p, subUnits) {
		t.Error("102/terminal media missing; step should be invalid")
	}
	missing := Missing(def, p, subUnits)
	if len(missing) != 1 || missing[0] != "102/terminal/media" {
		t.Errorf("have missing %v, want [102/terminal/media]", missing)
	}

	// adding the one missing image to the last incomplete sub-unit flips
	// the whole step to valid
	patch := NewPayload(KindPerSubUnit)
	patch.SubUnits = map[string]*SubUnitRecord{
		"102": {PerCategory: map[string]*CategoryData{
			"terminal": {Media: []AssetRef{"ref-4"}},
		}},
	}
	if err := p.Merge(patch); err != nil {
		t.Fatal(err)
	}
	if !IsStepValid(def, p, subUnits) {
		t.Errorf("step should be valid; missing: %v", Missing(def, p, subUnits))
	}
}

func TestIsStepValidEmptySets(t *testing.T) {
	def := perSubUnitDef()
	if !IsStepValid(def, nil, nil) {
		t.Error("zero sub-units should trivially validate")
	}
	noCats := &StepDefinition{Name: "x", Kind: KindPerSubUnit}
	if !IsStepValid(noCats, nil, []string{"101"}) {
		t.Error("zero categories should trivially validate")
	}
}

func TestIsStepValidMinMedia(t *testing.T) {
	def := &StepDefinition{
		Name:       "commissioning",
		Kind:       KindPerSubUnit,
		Categories: []Category{{Name: "test", MinMedia: 2}},
	}
	p := NewPayload(KindPerSubUnit)
	p.SubUnits = map[string]*SubUnitRecord{
		"101": {PerCategory: map[string]*CategoryData{"test": {Media: []AssetRef{"ref-1"}}}},
	}
	if IsStepValid(def, p, []string{"101"}) {
		t.Error("one of two required media should be invalid")
	}
	p.SubUnits["101"].PerCategory["test"].Media = append(p.SubUnits["101"].PerCategory["test"].Media, "ref-2")
	if !IsStepValid(def, p, []string{"101"}) {
		t.Error("two media should be valid")
	}
}
