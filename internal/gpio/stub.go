//go:build !linux

package gpio

import "errors"

// RealValve is not available on non-Linux platforms.
type RealValve struct{}

// NewRealValve returns an error on non-Linux platforms.
func NewRealValve(Config) (*RealValve, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (v *RealValve) Set(bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (v *RealValve) Close() error {
	return nil
}
