package workflow

import (
	"encoding/json"
	"testing"
)

func TestFieldValueJSON(t *testing.T) {
	for _, test := range []struct {
		testName string
		raw      string
		expect   FieldValue
	}{
		{"string", `"SN-001"`, StringValue("SN-001")},
		{"bool_true", `true`, BoolValue(true)},
		{"bool_false", `false`, BoolValue(false)},
		{"null", `null`, FieldValue{}},
		{"number", `42`, StringValue("42")},
		{"legacy_object_string", `{"value":"SN-001"}`, StringValue("SN-001")},
		{"legacy_object_bool", `{"value":false}`, BoolValue(false)},
		{"legacy_object_empty", `{}`, FieldValue{}},
	} {
		t.Run(test.testName, func(t *testing.T) {
			var v FieldValue
			if err := json.Unmarshal([]byte(test.raw), &v); err != nil {
				t.Fatal(err)
			}
			if v != test.expect {
				t.Errorf("have %+v, want %+v", v, test.expect)
			}
		})
	}
}

func TestFieldValueFilled(t *testing.T) {
	if StringValue("").Filled(FieldString) {
		t.Error("empty string should not be filled")
	}
	if !StringValue("x").Filled(FieldString) {
		t.Error("non-empty string should be filled")
	}
	if (FieldValue{}).Filled(FieldBool) {
		t.Error("unset bool should not be filled")
	}
	// an explicit false counts as filled
	if !BoolValue(false).Filled(FieldBool) {
		t.Error("explicit false bool should be filled")
	}
}

func TestPayloadLegacySubUnitArray(t *testing.T) {
	raw := `{
		"kind": "per_sub_unit",
		"sub_units": [
			{"sub_unit_id": "101", "categories": {"gateway": {"media": ["ref-1"]}}},
			{"sub_unit_id": "102", "categories": {"gateway": {"params": {"sn": "SN-9"}}}}
		]
	}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindPerSubUnit {
		t.Fatalf("have kind %s", p.Kind)
	}
	if len(p.SubUnits) != 2 {
		t.Fatalf("have %d sub-units, want 2", len(p.SubUnits))
	}
	r101 := p.SubUnits["101"]
	if r101 == nil || len(r101.PerCategory["gateway"].Media) != 1 {
		t.Error("sub-unit 101 gateway media not normalized")
	}
	r102 := p.SubUnits["102"]
	if r102 == nil || r102.PerCategory["gateway"].Params["sn"] != StringValue("SN-9") {
		t.Error("sub-unit 102 gateway params not normalized")
	}
}

func TestPayloadKeyedSubUnits(t *testing.T) {
	raw := `{"kind":"per_sub_unit","sub_units":{"101":{"categories":{"gateway":{"media":["ref-1"]}}}}}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatal(err)
	}
	if p.SubUnits["101"] == nil {
		t.Fatal("missing sub-unit 101")
	}
}

func TestPayloadMerge(t *testing.T) {
	t.Run("kind_mismatch", func(t *testing.T) {
		p := NewPayload(KindChecklist)
		if err := p.Merge(NewPayload(KindSingle)); err == nil {
			t.Error("expected kind mismatch error")
		}
	})

	t.Run("fields_additive", func(t *testing.T) {
		p := NewPayload(KindChecklist)
		patch := NewPayload(KindChecklist)
		patch.Fields = map[string]FieldValue{"a": StringValue("1")}
		if err := p.Merge(patch); err != nil {
			t.Fatal(err)
		}
		patch2 := NewPayload(KindChecklist)
		patch2.Fields = map[string]FieldValue{"b": BoolValue(false)}
		if err := p.Merge(patch2); err != nil {
			t.Fatal(err)
		}
		// sibling field untouched by the second patch
		if p.Fields["a"] != StringValue("1") || p.Fields["b"] != BoolValue(false) {
			t.Errorf("merge not additive: %+v", p.Fields)
		}
	})

	t.Run("sub_units_additive", func(t *testing.T) {
		p := NewPayload(KindPerSubUnit)
		patch := NewPayload(KindPerSubUnit)
		patch.SubUnits = map[string]*SubUnitRecord{
			"101": {PerCategory: map[string]*CategoryData{
				"gateway": {Media: []AssetRef{"ref-1"}},
			}},
		}
		if err := p.Merge(patch); err != nil {
			t.Fatal(err)
		}
		patch2 := NewPayload(KindPerSubUnit)
		patch2.SubUnits = map[string]*SubUnitRecord{
			"101": {PerCategory: map[string]*CategoryData{
				"gateway":  {Params: map[string]FieldValue{"sn": StringValue("SN-9")}},
				"terminal": {Media: []AssetRef{"ref-2"}},
			}},
		}
		if err := p.Merge(patch2); err != nil {
			t.Fatal(err)
		}
		gw := p.SubUnits["101"].PerCategory["gateway"]
		if len(gw.Media) != 1 || gw.Params["sn"] != StringValue("SN-9") {
			t.Errorf("gateway category merge clobbered data: %+v", gw)
		}
		if len(p.SubUnits["101"].PerCategory["terminal"].Media) != 1 {
			t.Error("terminal category not merged")
		}
	})
}
