// Package automower polls a robotic mower API and projects the state of one
// named mower onto a fixed set of mutually exclusive node outputs.
package automower

// Output names written by the projector.
const (
	OutputBattery           = "BatteryCapacity"
	OutputActivityMowing    = "ActivityMowing"
	OutputActivityGoingHome = "ActivityGoingHome"
	OutputActivityCharging  = "ActivityCharging"
	OutputActivityLeaving   = "ActivityLeavingCS"
	OutputActivityParking   = "ActivityParkingCS"
	OutputActivityStopped   = "ActivityStopped"
	OutputStateOperational  = "StateOperational"
	OutputStatePaused       = "StatePaused"
	OutputStateRestricted   = "StateRestricted"
	OutputStateError        = "StateError"
	OutputMowerID           = "MowerID"
)

// ActivityOutputs lists the activity flags in display order.
var ActivityOutputs = []string{
	OutputActivityMowing,
	OutputActivityGoingHome,
	OutputActivityCharging,
	OutputActivityLeaving,
	OutputActivityParking,
	OutputActivityStopped,
}

// StateOutputs lists the state flags in display order.
var StateOutputs = []string{
	OutputStateOperational,
	OutputStatePaused,
	OutputStateRestricted,
	OutputStateError,
}

// Activity is what the mower is currently doing.
type Activity int

const (
	ActivityUnknown Activity = iota
	ActivityMowing
	ActivityGoingHome
	ActivityCharging
	ActivityLeaving
	ActivityParkedInCS
	ActivityStoppedInGarden
	ActivityNotApplicable
)

var activityByName = map[string]Activity{
	"UNKNOWN":           ActivityUnknown,
	"MOWING":            ActivityMowing,
	"GOING_HOME":        ActivityGoingHome,
	"CHARGING":          ActivityCharging,
	"LEAVING":           ActivityLeaving,
	"PARKED_IN_CS":      ActivityParkedInCS,
	"STOPPED_IN_GARDEN": ActivityStoppedInGarden,
	"NOT_APPLICABLE":    ActivityNotApplicable,
}

var activityNames = map[Activity]string{
	ActivityUnknown:         "UNKNOWN",
	ActivityMowing:          "MOWING",
	ActivityGoingHome:       "GOING_HOME",
	ActivityCharging:        "CHARGING",
	ActivityLeaving:         "LEAVING",
	ActivityParkedInCS:      "PARKED_IN_CS",
	ActivityStoppedInGarden: "STOPPED_IN_GARDEN",
	ActivityNotApplicable:   "NOT_APPLICABLE",
}

// ParseActivity maps a raw API value. Unrecognised values are ActivityUnknown.
func ParseActivity(s string) Activity {
	return activityByName[s]
}

func (a Activity) String() string {
	if s, ok := activityNames[a]; ok {
		return s
	}
	return "UNKNOWN"
}

// Output returns the flag that is true for a, or "" when no flag applies.
// Not-applicable is reported as stopped.
func (a Activity) Output() string {
	switch a {
	case ActivityMowing:
		return OutputActivityMowing
	case ActivityGoingHome:
		return OutputActivityGoingHome
	case ActivityCharging:
		return OutputActivityCharging
	case ActivityLeaving:
		return OutputActivityLeaving
	case ActivityParkedInCS:
		return OutputActivityParking
	case ActivityStoppedInGarden, ActivityNotApplicable:
		return OutputActivityStopped
	}
	return ""
}

// State is the operational state of the mower.
type State int

const (
	StateUnknown State = iota
	StateInOperation
	StatePaused
	StateRestricted
	StateError
)

var stateByName = map[string]State{
	"UNKNOWN":           StateUnknown,
	"IN_OPERATION":      StateInOperation,
	"PAUSED":            StatePaused,
	"RESTRICTED":        StateRestricted,
	"ERROR":             StateError,
	"FATAL_ERROR":       StateError,
	"ERROR_AT_POWER_UP": StateError,
}

var stateNames = map[State]string{
	StateUnknown:     "UNKNOWN",
	StateInOperation: "IN_OPERATION",
	StatePaused:      "PAUSED",
	StateRestricted:  "RESTRICTED",
	StateError:       "ERROR",
}

// ParseState maps a raw API value. Unrecognised values are StateUnknown.
func ParseState(s string) State {
	return stateByName[s]
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Output returns the flag that is true for s, or "" when no flag applies.
func (s State) Output() string {
	switch s {
	case StateInOperation:
		return OutputStateOperational
	case StatePaused:
		return OutputStatePaused
	case StateRestricted:
		return OutputStateRestricted
	case StateError:
		return OutputStateError
	}
	return ""
}

// DeviceRecord is one mower from the device list.
type DeviceRecord struct {
	ID             string
	Name           string
	Model          string
	BatteryPercent uint8
	Mode           string
	Activity       Activity
	State          State
	ErrorCode      int
	Connected      bool
}

// listResponse is the JSON:API envelope of the device list.
type listResponse struct {
	Data   []mowerData `json:"data"`
	Errors []apiError  `json:"errors"`
}

type mowerData struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes mowerAttributes `json:"attributes"`
}

type mowerAttributes struct {
	System struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"system"`
	Battery struct {
		BatteryPercent int `json:"batteryPercent"`
	} `json:"battery"`
	Mower struct {
		Mode      string `json:"mode"`
		Activity  string `json:"activity"`
		State     string `json:"state"`
		ErrorCode int    `json:"errorCode"`
	} `json:"mower"`
	Metadata struct {
		Connected bool `json:"connected"`
	} `json:"metadata"`
}

type apiError struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (d mowerData) record() DeviceRecord {
	a := d.Attributes
	return DeviceRecord{
		ID:             d.ID,
		Name:           a.System.Name,
		Model:          a.System.Model,
		BatteryPercent: clampPercent(a.Battery.BatteryPercent),
		Mode:           a.Mower.Mode,
		Activity:       ParseActivity(a.Mower.Activity),
		State:          ParseState(a.Mower.State),
		ErrorCode:      a.Mower.ErrorCode,
		Connected:      a.Metadata.Connected,
	}
}

func clampPercent(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return uint8(v)
}
