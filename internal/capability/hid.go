package capability

import (
	"fmt"

	"github.com/roach88/kllcore/internal/engine"
)

// HID usage ranges.
const (
	KeyboardMin = 0x00
	KeyboardMax = 0xE7 // Right GUI

	ConsumerMin = 0x001
	ConsumerMax = 0x29D

	SystemMin = 0x81 // Power Down
	SystemMax = 0xB7
)

// HID protocol modes.
const (
	ProtocolBoot        = 0
	ProtocolApplication = 1
	ProtocolToggle      = 3
)

// usage checks that the usage id is inside the page's range.
func usage(name string, lo, hi int32) engine.CapabilityFunc {
	return func(inv *engine.Invocation) error {
		if _, err := paramRange(inv, 0, lo, hi); err != nil {
			return fmt.Errorf("invalid %s usage: %w", name, err)
		}
		return nil
	}
}

func protocol(inv *engine.Invocation) error {
	switch inv.Param(0) {
	case ProtocolBoot, ProtocolApplication, ProtocolToggle:
		return nil
	}
	return fmt.Errorf("%s: unknown protocol mode %d", inv.Name, inv.Param(0))
}
