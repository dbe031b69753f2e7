// Package thermostat contains the valve control logic of a room
// temperature controller.
// The Controller has NO external dependencies (no GPIO, files or clocks);
// Node wires it to outputs, the valve relay and the setpoint store.
package thermostat

import "math"

// SetpointHysteresis is the smallest setpoint change that is stored.
// Smaller changes are ignored so that a host echoing the stored value back
// as a new setpoint cannot loop.
const SetpointHysteresis = 0.1

// Inputs is a complete set of controller inputs.
type Inputs struct {
	SetTemp float64
	CurTemp float64
	Cooling bool
	Heating bool
	Manual  bool
}

// Update carries the inputs that were written. Nil fields keep their
// previous value.
type Update struct {
	SetTemp *float64 `json:"set_temp,omitempty"`
	CurTemp *float64 `json:"cur_temp,omitempty"`
	Cooling *bool    `json:"cooling,omitempty"`
	Heating *bool    `json:"heating,omitempty"`
	Manual  *bool    `json:"manual,omitempty"`
}

// Result is the controller output after an update.
type Result struct {
	// Ready is false until every input has been written.
	Ready         bool
	Valve         bool
	Stored        float64
	StoredChanged bool
}

const (
	haveSet = 1 << iota
	haveCur
	haveCooling
	haveHeating
	haveManual

	haveAll = haveSet | haveCur | haveCooling | haveHeating | haveManual
)

// Controller tracks the inputs and the stored setpoint. It is not safe
// for concurrent use.
type Controller struct {
	in        Inputs
	have      int
	stored    float64
	hasStored bool
}

// NewController creates a controller with no inputs and no stored setpoint.
func NewController() *Controller {
	return &Controller{}
}

// Restore sets the stored setpoint, e.g. from persistent storage at startup.
// It also counts as the setpoint input, so the remaining inputs are enough
// to produce a result after a restart.
func (c *Controller) Restore(stored float64) {
	c.stored = stored
	c.hasStored = true
	c.in.SetTemp = stored
	c.have |= haveSet
}

// Stored returns the stored setpoint.
func (c *Controller) Stored() (float64, bool) {
	return c.stored, c.hasStored
}

// Apply merges u into the inputs. ok is false until every input has been
// written at least once; no result is produced before that.
func (c *Controller) Apply(u Update) (res Result, ok bool) {
	if u.SetTemp != nil {
		c.in.SetTemp = *u.SetTemp
		c.have |= haveSet
	}
	if u.CurTemp != nil {
		c.in.CurTemp = *u.CurTemp
		c.have |= haveCur
	}
	if u.Cooling != nil {
		c.in.Cooling = *u.Cooling
		c.have |= haveCooling
	}
	if u.Heating != nil {
		c.in.Heating = *u.Heating
		c.have |= haveHeating
	}
	if u.Manual != nil {
		c.in.Manual = *u.Manual
		c.have |= haveManual
	}
	if c.have != haveAll {
		return Result{}, false
	}

	if !c.hasStored || (u.SetTemp != nil && math.Abs(c.in.SetTemp-c.stored) >= SetpointHysteresis) {
		res.StoredChanged = !c.hasStored || c.stored != c.in.SetTemp
		c.stored = c.in.SetTemp
		c.hasStored = true
	}
	res.Ready = true
	res.Stored = c.stored
	res.Valve = ValveOpen(c.in)
	return res, true
}

// ValveOpen decides the valve state. Manual mode always opens the valve;
// heating and cooling requested together close it.
func ValveOpen(in Inputs) bool {
	switch {
	case in.Manual:
		return true
	case in.Cooling && in.Heating:
		return false
	case in.Cooling:
		return in.CurTemp > in.SetTemp
	case in.Heating:
		return in.CurTemp < in.SetTemp
	}
	return false
}
