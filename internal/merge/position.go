package merge

import (
	"os"

	"github.com/rs/zerolog"
)

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "merge").Logger()

// PositionStage collapses merged matrix positions into one logical position.
type PositionStage struct {
	table    Table
	registry *Registry
	log      *zerolog.Logger
	stats    stageCounters
}

// NewPositionStage wires table and registry together. A nil registry gets a
// fresh unbounded one; a nil logger falls back to stdout.
func NewPositionStage(table Table, registry *Registry, logger *zerolog.Logger) *PositionStage {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	return &PositionStage{table: table, registry: registry, log: logger}
}

// Process resolves position through the merge table and reports whether a
// position event should be raised, along with the position to raise it for.
// Positions not named in the table bypass the registry.
func (s *PositionStage) Process(position uint32, pressed bool) (uint32, bool) {
	effective, participant := s.table.Resolve(position)
	if !participant {
		s.stats.bypassed.Add(1)
		return position, true
	}

	suppress, err := s.registry.Consume(effective, pressed)
	if err != nil {
		s.stats.full.Add(1)
		s.log.Error().Err(err).
			Uint32("orig_position", position).
			Uint32("merged_position", effective).
			Int("active", s.registry.Len()).
			Msg("Dropping merged key event")
		return effective, false
	}

	if suppress {
		s.stats.suppressed.Add(1)
		s.log.Trace().
			Uint32("orig_position", position).
			Uint32("merged_position", effective).
			Uint32("event_count", s.registry.Count(effective)).
			Bool("pressed", pressed).
			Msg("Merged key already pressed, consuming event")
		return effective, false
	}

	s.stats.forwarded.Add(1)
	s.log.Debug().
		Uint32("orig_position", position).
		Uint32("merged_position", effective).
		Bool("pressed", pressed).
		Msg("Raising merged position event")
	return effective, true
}

func (s *PositionStage) Registry() *Registry { return s.registry }

func (s *PositionStage) Table() Table { return s.table }

func (s *PositionStage) Stats() StageStats { return s.stats.snapshot() }
