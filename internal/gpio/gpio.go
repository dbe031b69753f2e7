// Package gpio drives the thermostat valve relay.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Valve switches a valve relay.
type Valve interface {
	// Set opens (true) or closes (false) the valve.
	Set(open bool) error

	// Close releases GPIO resources, leaving the valve closed.
	Close() error
}

// Config selects the output line.
type Config struct {
	Chip string `yaml:"chip"`
	// Line is the line offset (BCM numbering on a Raspberry Pi).
	Line int `yaml:"line"`
	// ActiveLow inverts the output for relay boards that switch on low.
	ActiveLow bool `yaml:"active_low"`
}

// Default output line.
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 17
)
