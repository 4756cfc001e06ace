// Package builtin contains the stock workflow templates for the hotel
// device lifecycle: installation, measurement, inspection, operational
// status changes, and fault handling.
package builtin

import "github.com/roomworks/roomflow/workflow"

// Template names. Instances reference templates by these names.
const (
	InstallationName = "com.roomworks.install"
	MeasurementName  = "com.roomworks.measure"
	OpsStatusName    = "com.roomworks.opsstatus"
	InspectionName   = "com.roomworks.inspect"
	FaultOnsiteName  = "com.roomworks.fault.onsite"
	FaultReplaceName = "com.roomworks.fault.replace"
	FaultRemoteName  = "com.roomworks.fault.remote"
)

func strField(key string) workflow.FieldKey {
	return workflow.FieldKey{Key: key, Kind: workflow.FieldString}
}

func boolField(key string) workflow.FieldKey {
	return workflow.FieldKey{Key: key, Kind: workflow.FieldBool}
}

// Installation is the full site installation template: six steps from
// site survey through acceptance, reviewed by four approval stages.
// Device install and commissioning collect data per room.
func Installation() *workflow.Template {
	return &workflow.Template{
		Name: InstallationName,
		Steps: []workflow.StepDefinition{
			{Name: "site survey", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				strField("floor_plan"),
				strField("room_count"),
			}},
			{Name: "network config", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				strField("ssid"),
				strField("gateway_addr"),
				boolField("network_verified"),
			}},
			{Name: "room prep", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("power_ok"),
				boolField("conduit_ok"),
			}},
			{Name: "device install", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "gateway", Params: []workflow.FieldKey{strField("sn")}},
				{Name: "panel", Params: []workflow.FieldKey{strField("sn")}},
				{Name: "sensor"},
			}},
			{Name: "commissioning", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "gateway", Params: []workflow.FieldKey{boolField("online")}},
				{Name: "panel", Params: []workflow.FieldKey{boolField("online")}},
			}},
			{Name: "acceptance", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				strField("sign_off"),
			}},
		},
		Stages: []string{
			"construction lead",
			"project manager",
			"supervision unit",
			"owner",
		},
	}
}

// Measurement is the pre-install site measurement template.
func Measurement() *workflow.Template {
	return &workflow.Template{
		Name: MeasurementName,
		Steps: []workflow.StepDefinition{
			{Name: "room measurement", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "panel position", Params: []workflow.FieldKey{strField("wall_material")}},
				{Name: "wiring route"},
			}},
			{Name: "wiring checklist", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("mains_located"),
				boolField("weak_current_ok"),
				strField("notes"),
			}},
		},
		Stages: []string{"project manager", "owner"},
	}
}

// OpsStatus is the operational status change template: a single
// confirmation checklist with one review stage.
func OpsStatus() *workflow.Template {
	return &workflow.Template{
		Name: OpsStatusName,
		Steps: []workflow.StepDefinition{
			{Name: "status change", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				strField("target_status"),
				boolField("devices_paused"),
			}},
		},
		Stages: []string{"ops"},
	}
}

// Inspection is the routine inspection report template.
func Inspection() *workflow.Template {
	return &workflow.Template{
		Name: InspectionName,
		Steps: []workflow.StepDefinition{
			{Name: "inspection report", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("devices_ok"),
				boolField("network_ok"),
				strField("summary"),
			}},
		},
		Stages: []string{"ops"},
	}
}

// FaultOnsite is the fault ticket template for an on-site repair.
func FaultOnsite() *workflow.Template {
	return &workflow.Template{
		Name: FaultOnsiteName,
		Steps: []workflow.StepDefinition{
			{Name: "diagnosis", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				strField("fault_cause"),
			}},
			{Name: "repair", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				strField("repair_photo"),
			}},
			{Name: "verification", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("fault_cleared"),
			}},
		},
		Stages: []string{"ops"},
	}
}

// FaultReplace is the fault ticket template for a device replacement.
// The replacement step records old and new serial numbers per device.
func FaultReplace() *workflow.Template {
	return &workflow.Template{
		Name: FaultReplaceName,
		Steps: []workflow.StepDefinition{
			{Name: "diagnosis", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				strField("fault_cause"),
			}},
			{Name: "replacement", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "device", Params: []workflow.FieldKey{
					strField("old_sn"),
					strField("new_sn"),
				}},
			}},
			{Name: "verification", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("fault_cleared"),
			}},
		},
		Stages: []string{"ops"},
	}
}

// FaultRemote is the fault ticket template for a remote fix. The log
// capture field is normally filled by a scheduled device-log check
// rather than an operator.
func FaultRemote() *workflow.Template {
	return &workflow.Template{
		Name: FaultRemoteName,
		Steps: []workflow.StepDefinition{
			{Name: "log capture", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				boolField("log_captured"),
			}},
			{Name: "remote fix", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				strField("resolution"),
			}},
		},
		Stages: []string{"ops"},
	}
}

// All returns every builtin template.
func All() []*workflow.Template {
	return []*workflow.Template{
		Installation(),
		Measurement(),
		OpsStatus(),
		Inspection(),
		FaultOnsite(),
		FaultReplace(),
		FaultRemote(),
	}
}

type registerer interface {
	RegisterTemplate(t *workflow.Template) error
}

// RegisterAll registers every builtin template with r.
func RegisterAll(r registerer) error {
	for _, t := range All() {
		if err := r.RegisterTemplate(t); err != nil {
			return err
		}
	}
	return nil
}
