package keymerge

import (
	"context"
	"fmt"
	"time"

	"github.com/jetkvm/keymerge/internal/eventbus"
	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/kscan"
	"github.com/jetkvm/keymerge/internal/merge"
)

// Pipeline takes raw scan transitions through the position merge stage, a
// flat keymap and the keycode merge stage, publishing every forwarded event
// on the bus.
type Pipeline struct {
	positions *merge.PositionStage
	keycodes  *merge.KeycodeStage
	scanner   *kscan.Processor
	bus       *eventbus.Bus
	keymap    []uint32

	started time.Time
}

func NewPipeline(cfg *Config) (*Pipeline, error) {
	table, err := cfg.MergeTable()
	if err != nil {
		return nil, fmt.Errorf("failed to parse merge map: %w", err)
	}
	transform, err := cfg.Transform()
	if err != nil {
		return nil, fmt.Errorf("failed to build matrix transform: %w", err)
	}

	var regOpts []merge.Option
	if cfg.RegistryCapacity > 0 {
		regOpts = append(regOpts, merge.WithCapacity(cfg.RegistryCapacity))
	}

	p := &Pipeline{
		positions: merge.NewPositionStage(table, merge.NewRegistry(regOpts...), mergeLogger),
		keycodes:  merge.NewKeycodeStage(merge.NewRegistry(regOpts...), keycodeLogger),
		bus:       eventbus.New(),
		keymap:    append([]uint32(nil), cfg.Keymap...),
		started:   time.Now(),
	}
	p.scanner = kscan.NewProcessor(cfg.QueueSize, transform, p.handlePosition, kscanLogger)

	if table.Len() == 0 {
		mergeLogger.Info().Msg("merge map empty, all positions bypass merging")
	}
	return p, nil
}

// uptime returns milliseconds since the pipeline was created.
func (p *Pipeline) uptime() int64 {
	return time.Since(p.started).Milliseconds()
}

// HandleScan is the scan driver callback. It never blocks.
func (p *Pipeline) HandleScan(row, column uint32, pressed bool) bool {
	return p.scanner.Callback(row, column, pressed)
}

// Run drains scan events until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.scanner.Run(ctx)
}

func (p *Pipeline) handlePosition(position uint32, pressed bool) {
	effective, forward := p.positions.Process(position, pressed)
	if !forward {
		return
	}

	ts := p.uptime()
	p.bus.Publish(events.PositionStateChanged{
		Source:    events.SourceLocal,
		Position:  effective,
		State:     pressed,
		Timestamp: ts,
	})

	if int(effective) < len(p.keymap) && p.keymap[effective] != 0 {
		p.RaiseKeycode(p.keymap[effective], pressed, ts)
	}
}

// RaiseKeycode runs an encoded keycode through the keycode merge stage and
// publishes the resulting event, if any.
func (p *Pipeline) RaiseKeycode(encoded uint32, pressed bool, timestamp int64) (events.KeycodeStateChanged, bool) {
	ev, ok := p.keycodes.Process(encoded, pressed, timestamp)
	if ok {
		p.bus.Publish(ev)
	}
	return ev, ok
}

func (p *Pipeline) Bus() *eventbus.Bus { return p.bus }

func (p *Pipeline) Close() {
	p.bus.Close()
}
