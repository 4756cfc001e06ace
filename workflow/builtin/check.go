package builtin

import (
	"context"
	"fmt"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/workflow"
)

// Detection check kinds understood by the simulated checker.
const (
	CheckKindNetwork   = "network"
	CheckKindDeviceLog = "device-log"
)

// SimulatedChecker stands in for the field systems that would perform
// real detections. It reports success for every check: a network check
// sets network_verified and a device-log check sets log_captured.
// Unknown kinds error and the check is dropped.
type SimulatedChecker struct{}

func (SimulatedChecker) Check(_ context.Context, c *storage.Check) (*workflow.Payload, error) {
	var key string
	switch c.Kind {
	case CheckKindNetwork:
		key = "network_verified"
	case CheckKindDeviceLog:
		key = "log_captured"
	default:
		return nil, fmt.Errorf("unknown check kind: %s", c.Kind)
	}
	p := workflow.NewPayload(workflow.KindChecklist)
	p.Fields = map[string]workflow.FieldValue{key: workflow.BoolValue(true)}
	return p, nil
}
