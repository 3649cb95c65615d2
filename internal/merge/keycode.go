package merge

import (
	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/hid"
	"github.com/rs/zerolog"
)

// KeycodeStage deduplicates encoded keycode activations. It keys its registry
// by the raw encoded value, so encodings that differ only in carried modifiers
// are tracked separately.
type KeycodeStage struct {
	registry *Registry
	log      *zerolog.Logger
	stats    stageCounters
}

func NewKeycodeStage(registry *Registry, logger *zerolog.Logger) *KeycodeStage {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	return &KeycodeStage{registry: registry, log: logger}
}

// Process decodes encoded and returns the event to publish. The boolean is
// false when the transition is swallowed.
func (s *KeycodeStage) Process(encoded uint32, pressed bool, timestamp int64) (events.KeycodeStateChanged, bool) {
	ev := Decode(encoded)
	ev.State = pressed
	ev.Timestamp = timestamp

	suppress, err := s.registry.Consume(encoded, pressed)
	if err != nil {
		s.stats.full.Add(1)
		s.log.Error().Err(err).
			Uint32("encoded", encoded).
			Int("active", s.registry.Len()).
			Msg("Dropping keycode event")
		return events.KeycodeStateChanged{}, false
	}
	if suppress {
		s.stats.suppressed.Add(1)
		s.log.Trace().
			Uint32("encoded", encoded).
			Uint32("event_count", s.registry.Count(encoded)).
			Bool("pressed", pressed).
			Msg("Keycode already active, consuming event")
		return events.KeycodeStateChanged{}, false
	}

	s.stats.forwarded.Add(1)
	return ev, true
}

func (s *KeycodeStage) Registry() *Registry { return s.registry }

func (s *KeycodeStage) Stats() StageStats { return s.stats.snapshot() }

// Decode splits an encoded keycode into a state event without State and
// Timestamp set. A zero usage page means the keyboard page. Modifier usages
// carry their own bit plus any folded modifiers as explicit modifiers;
// everything else carries folded modifiers as implicit ones.
func Decode(encoded uint32) events.KeycodeStateChanged {
	page := hid.UsagePage(encoded)
	id := hid.UsageID(encoded)
	if page == 0 {
		page = hid.UsagePageKeyboard
	}

	ev := events.KeycodeStateChanged{UsagePage: page, Keycode: uint32(id)}
	if hid.IsModifier(page, id) {
		ev.ExplicitModifiers = hid.ModifierMask(id) | hid.SelectMods(encoded)
	} else {
		ev.ImplicitModifiers = hid.SelectMods(encoded)
	}
	return ev
}
