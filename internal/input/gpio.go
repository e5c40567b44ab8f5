package input

import (
	"fmt"
	"time"
)

// GPIOConfig selects the line a push button is wired to.
type GPIOConfig struct {
	Chip      string
	Offset    int
	ActiveLow bool
	PullUp    bool
	Debounce  time.Duration
}

// GPIOChannel is the channel name events from a line carry.
func GPIOChannel(offset int) string {
	return fmt.Sprintf("gpio:%d", offset)
}
