package events

import "fmt"

// Event is anything published on the event bus.
type Event interface {
	Name() string
}

// PositionSource tags where a position change originated.
type PositionSource uint8

const (
	SourceLocal PositionSource = iota
)

func (s PositionSource) String() string {
	switch s {
	case SourceLocal:
		return "local"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

func (s PositionSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PositionStateChanged is raised once per logical key press and once per
// logical key release, after merged positions have been collapsed.
type PositionStateChanged struct {
	Source    PositionSource `json:"source"`
	Position  uint32         `json:"position"`
	State     bool           `json:"state"`
	Timestamp int64          `json:"timestamp"`
}

func (PositionStateChanged) Name() string { return "position_state_changed" }

// KeycodeStateChanged is raised for the first activation and the final
// deactivation of an encoded keycode.
type KeycodeStateChanged struct {
	UsagePage         uint16 `json:"usage_page"`
	Keycode           uint32 `json:"keycode"`
	ImplicitModifiers byte   `json:"implicit_modifiers"`
	ExplicitModifiers byte   `json:"explicit_modifiers"`
	State             bool   `json:"state"`
	Timestamp         int64  `json:"timestamp"`
}

func (KeycodeStateChanged) Name() string { return "keycode_state_changed" }
