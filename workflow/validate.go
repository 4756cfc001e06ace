package workflow

// IsStepValid reports whether payload satisfies def for the given known
// sub-units. It has no side effects and is safe to call on every edit for
// live feedback; CompleteStep calls it again authoritatively.
func IsStepValid(def *StepDefinition, p *Payload, subUnits []string) bool {
	return len(Missing(def, p, subUnits)) == 0
}

// Missing returns the outstanding items blocking completion of a step.
// Field items are field keys; per-sub-unit items take the form
// "subUnit/category/media" or "subUnit/category/paramKey".
// An empty return means the step data is complete.
//
// A PerSubUnit step with zero sub-units or zero categories is trivially
// complete (empty-set convention).
func Missing(def *StepDefinition, p *Payload, subUnits []string) []string {
	if def == nil {
		return nil
	}
	var missing []string
	if def.Kind == KindPerSubUnit {
		for _, su := range subUnits {
			var rec *SubUnitRecord
			if p != nil {
				rec = p.SubUnits[su]
			}
			missing = append(missing, missingForSubUnit(def, su, rec)...)
		}
		return missing
	}
	for _, f := range def.Fields {
		var v FieldValue
		if p != nil {
			v = p.Fields[f.Key]
		}
		if !v.Filled(f.Kind) {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

func missingForSubUnit(def *StepDefinition, su string, rec *SubUnitRecord) []string {
	var missing []string
	for _, cat := range def.Categories {
		var cd *CategoryData
		if rec != nil {
			cd = rec.PerCategory[cat.Name]
		}
		min := cat.MinMedia
		if min < 1 {
			min = 1
		}
		if cd == nil || len(cd.Media) < min {
			missing = append(missing, su+"/"+cat.Name+"/media")
		}
		for _, pk := range cat.Params {
			var v FieldValue
			if cd != nil {
				v = cd.Params[pk.Key]
			}
			if !v.Filled(pk.Kind) {
				missing = append(missing, su+"/"+cat.Name+"/"+pk.Key)
			}
		}
	}
	return missing
}
