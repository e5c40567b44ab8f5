//go:build !linux

package input

import (
	"context"
	"errors"
)

// GPIOSource is not available on non-Linux platforms.
type GPIOSource struct{}

// NewGPIOSource returns a source that always fails.
func NewGPIOSource(GPIOConfig) *GPIOSource {
	return &GPIOSource{}
}

// Run returns an error on non-Linux platforms.
func (s *GPIOSource) Run(context.Context, chan<- Event) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}
