//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealValve drives a valve relay through the Linux GPIO character device.
type RealValve struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealValve requests the configured line as an output, initially closed.
func NewRealValve(cfg Config) (*RealValve, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(cfg.Line, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request valve line %d: %w", cfg.Line, err)
	}

	return &RealValve{chip: chip, line: line}, nil
}

// Set drives the line active to open the valve.
func (v *RealValve) Set(open bool) error {
	val := 0
	if open {
		val = 1
	}
	if err := v.line.SetValue(val); err != nil {
		return fmt.Errorf("set valve line: %w", err)
	}
	return nil
}

// Close closes the valve and returns the line to an input with pull-down,
// matching the Pi boot defaults.
func (v *RealValve) Close() error {
	var errs []error

	if v.line != nil {
		if err := v.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("close valve: %w", err))
		}
		if err := v.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure valve line: %w", err))
		}
		if err := v.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close valve line: %w", err))
		}
	}
	if v.chip != nil {
		if err := v.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
