package kscan

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var ErrAlreadyRunning = errors.New("kscan: processor already running")

// DefaultQueueSize matches the usual firmware event queue depth.
const DefaultQueueSize = 4

// Event is one debounced switch transition from the scan driver.
type Event struct {
	Row     uint32
	Column  uint32
	Pressed bool
}

// Handler receives mapped positions in enqueue order.
type Handler func(position uint32, pressed bool)

// Stats counts events lost before reaching the handler.
type Stats struct {
	Queued   uint64
	Dropped  uint64
	Unmapped uint64
}

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "kscan").Logger()

// Processor buffers scan events in a bounded FIFO and drains them from a
// single consumer.
//
// Callback may be called from any goroutine and never blocks: when the queue
// is full the new event is dropped. Each accepted event reaches the handler
// exactly once, in order.
type Processor struct {
	queue     chan Event
	wake      chan struct{}
	transform Transform
	handler   Handler
	log       *zerolog.Logger

	drainLock sync.Mutex
	running   atomic.Bool

	queued   atomic.Uint64
	dropped  atomic.Uint64
	unmapped atomic.Uint64
}

func NewProcessor(size int, transform Transform, handler Handler, logger *zerolog.Logger) *Processor {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	return &Processor{
		queue:     make(chan Event, size),
		wake:      make(chan struct{}, 1),
		transform: transform,
		handler:   handler,
		log:       logger,
	}
}

// Callback enqueues a scan transition and schedules a drain. It reports
// whether the event was accepted.
func (p *Processor) Callback(row, column uint32, pressed bool) bool {
	accepted := true
	select {
	case p.queue <- Event{Row: row, Column: column, Pressed: pressed}:
		p.queued.Add(1)
	default:
		accepted = false
		p.dropped.Add(1)
		p.log.Warn().
			Uint32("row", row).
			Uint32("col", column).
			Bool("pressed", pressed).
			Msg("Scan queue full, dropping event")
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return accepted
}

// Drain processes queued events until the queue is empty. Concurrent calls
// are serialized.
func (p *Processor) Drain() {
	p.drainLock.Lock()
	defer p.drainLock.Unlock()

	for {
		select {
		case ev := <-p.queue:
			p.process(ev)
		default:
			return
		}
	}
}

func (p *Processor) process(ev Event) {
	position := p.transform.RowColumnToPosition(ev.Row, ev.Column)
	if position < 0 {
		p.unmapped.Add(1)
		p.log.Warn().
			Uint32("row", ev.Row).
			Uint32("col", ev.Column).
			Bool("pressed", ev.Pressed).
			Msg("Not found in transform")
		return
	}

	p.log.Trace().
		Uint32("row", ev.Row).
		Uint32("col", ev.Column).
		Int32("position", position).
		Bool("pressed", ev.Pressed).
		Msg("Scan event")

	p.handler(uint32(position), ev.Pressed)
}

// Run drains the queue on every wake-up until ctx is done. Only one Run may
// be active per processor.
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			p.Drain()
		}
	}
}

func (p *Processor) Stats() Stats {
	return Stats{
		Queued:   p.queued.Load(),
		Dropped:  p.dropped.Load(),
		Unmapped: p.unmapped.Load(),
	}
}
