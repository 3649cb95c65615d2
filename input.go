package keymerge

import (
	"context"

	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/uinput"
	"github.com/rs/xid"
)

const inputQueueSize = 64

// initInputBackend attaches a uinput keyboard to the bus so forwarded keycode
// events reach the host. Failure leaves the pipeline running without output.
func initInputBackend(ctx context.Context, p *Pipeline, cfg *Config) *uinput.Backend {
	if !cfg.UinputEnabled {
		inputLogger.Info().Msg("uinput backend disabled")
		return nil
	}

	inputLogger.Info().Msg("Initializing uinput backend")
	backend, err := uinput.NewBackend(cfg.DeviceName, inputLogger)
	if err != nil {
		inputLogger.Error().Err(err).Msg("failed to init uinput backend")
		return nil
	}

	backend.SetOnKeysDownChange(func(state uinput.KeysDownState) {
		inputLogger.Trace().
			Uint8("modifier", state.Modifier).
			Bytes("keys", state.Keys).
			Msg("keys down changed")
	})

	id := "uinput-" + xid.New().String()
	ch := make(chan events.Event, inputQueueSize)
	if err := p.Bus().Subscribe(id, ch); err != nil {
		inputLogger.Error().Err(err).Msg("failed to subscribe uinput backend")
		_ = backend.Close()
		return nil
	}

	go func() {
		backend.Run(ctx, ch)
		_ = p.Bus().Unsubscribe(id)
		_ = backend.Close()
	}()
	return backend
}
