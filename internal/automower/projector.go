package automower

import (
	"errors"
	"fmt"

	"github.com/teclab-at/logic-nodes/internal/node"
)

// ErrTargetNotFound is reported when no record carries the configured name.
var ErrTargetNotFound = errors.New("automower: mower name not found")

// Outputs is the node state written by the projector. *node.Context
// satisfies it.
type Outputs interface {
	Apply(outs ...node.Output) []node.Output
	SignalError(msg string)
	ClearError()
}

// ProjectionResult reports what a projection did.
type ProjectionResult struct {
	Found   bool
	Device  DeviceRecord
	Changed []node.Output
	Err     error
}

// Project writes the outputs for the first record named target.
//
// Exactly one activity flag and one state flag end up true, or none of a
// category when its value is unknown. Only changed values are written. When
// no record matches, the error output is raised and the flags keep their
// last known values.
func Project(outs Outputs, records []DeviceRecord, target string) ProjectionResult {
	for _, r := range records {
		if r.Name != target {
			continue
		}

		changed := outs.Apply(desiredOutputs(r)...)
		outs.ClearError()
		return ProjectionResult{Found: true, Device: r, Changed: changed}
	}

	err := fmt.Errorf("%w: %q", ErrTargetNotFound, target)
	outs.SignalError(err.Error())
	return ProjectionResult{Err: err}
}

func desiredOutputs(r DeviceRecord) []node.Output {
	outs := make([]node.Output, 0, 1+len(ActivityOutputs)+len(StateOutputs))
	outs = append(outs, node.Byte(OutputBattery, r.BatteryPercent))

	active := r.Activity.Output()
	for _, name := range ActivityOutputs {
		outs = append(outs, node.Bool(name, name == active))
	}

	state := r.State.Output()
	for _, name := range StateOutputs {
		outs = append(outs, node.Bool(name, name == state))
	}
	return outs
}
