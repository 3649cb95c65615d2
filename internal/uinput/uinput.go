package uinput

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/hid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// evdev/uinput constants
const (
	UI_DEV_CREATE  = 0x5501
	UI_DEV_DESTROY = 0x5502
	UI_SET_EVBIT   = 0x40045564
	UI_SET_KEYBIT  = 0x40045565

	EV_SYN = 0x00
	EV_KEY = 0x01

	SYN_REPORT = 0

	BUS_VIRTUAL = 0x06

	uinputMaxNameSize = 80
	absCount          = 64
)

const devicePath = "/dev/uinput"

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type userDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	Absmax       [absCount]int32
	Absmin       [absCount]int32
	Absfuzz      [absCount]int32
	Absflat      [absCount]int32
}

// KeysDownState mirrors a boot keyboard report: modifier byte plus six key slots.
type KeysDownState struct {
	Modifier byte   `json:"modifier"`
	Keys     []byte `json:"keys"`
}

// Backend injects keycode state changes into a virtual Linux keyboard.
type Backend struct {
	w      io.Writer
	fd     *os.File
	log    *zerolog.Logger
	onKeys func(state KeysDownState)

	keyboardStateLock sync.Mutex
	explicit          byte
	modifierHolds     [8]int // per modifier usage, sources currently holding it
	held              map[byte]byte // usage id -> implicit modifiers pressed with it
	keysDownState     KeysDownState
	lastUserInput     time.Time
}

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "uinput").Logger()

// NewBackend creates and registers a virtual keyboard device.
func NewBackend(name string, logger *zerolog.Logger) (*Backend, error) {
	f, err := os.OpenFile(devicePath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w. Ensure 'modprobe uinput' and permissions", devicePath, err)
	}

	u := newBackend(f, logger)
	u.fd = f

	if err := u.ioctl(UI_SET_EVBIT, EV_KEY); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ioctl UI_SET_EVBIT EV_KEY failed: %w", err)
	}
	for _, table := range []map[uint16]int{keyboardToLinux, modifierToLinux, consumerToLinux} {
		for _, code := range table {
			if err := u.ioctl(UI_SET_KEYBIT, code); err != nil {
				u.log.Warn().Err(err).Int("code", code).Msg("failed to enable key")
			}
		}
	}

	dev := userDev{ID: inputID{Bustype: BUS_VIRTUAL, Vendor: 0x1d6b, Product: 0x0104, Version: 1}}
	copy(dev.Name[:uinputMaxNameSize-1], name)
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write uinput device setup failed: %w", err)
	}

	if err := u.ioctl(UI_DEV_CREATE, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ioctl UI_DEV_CREATE failed: %w", err)
	}

	u.log.Info().Str("name", name).Msg("uinput keyboard created")
	return u, nil
}

func newBackend(w io.Writer, logger *zerolog.Logger) *Backend {
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	return &Backend{
		w:             w,
		log:           logger,
		held:          make(map[byte]byte),
		keysDownState: KeysDownState{Keys: make([]byte, 6)},
		lastUserInput: time.Now(),
	}
}

func (u *Backend) Close() error {
	if u.fd != nil {
		_ = u.ioctl(UI_DEV_DESTROY, 0)
		err := u.fd.Close()
		u.fd = nil
		return err
	}
	return nil
}

func (u *Backend) ioctl(request uint, arg int) error {
	return unix.IoctlSetInt(int(u.fd.Fd()), request, arg)
}

func (u *Backend) writeEvent(typ, code uint16, val int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: val}
	return binary.Write(u.w, binary.LittleEndian, &ev)
}

func (u *Backend) key(code int, pressed bool) error {
	val := int32(0)
	if pressed {
		val = 1
	}
	return u.writeEvent(EV_KEY, uint16(code), val)
}

func (u *Backend) sync() error {
	return u.writeEvent(EV_SYN, SYN_REPORT, 0)
}

func (u *Backend) SetOnKeysDownChange(f func(state KeysDownState)) {
	u.onKeys = f
}

func (u *Backend) KeysDown() KeysDownState {
	u.keyboardStateLock.Lock()
	defer u.keyboardStateLock.Unlock()
	return KeysDownState{
		Modifier: u.keysDownState.Modifier,
		Keys:     append([]byte(nil), u.keysDownState.Keys...),
	}
}

func (u *Backend) GetLastUserInputTime() time.Time {
	u.keyboardStateLock.Lock()
	defer u.keyboardStateLock.Unlock()
	return u.lastUserInput
}

// HandleKeycode injects one keycode state change. Implicit modifiers are
// pressed before the key and released after it, unless they are held
// explicitly.
func (u *Backend) HandleKeycode(ev events.KeycodeStateChanged) error {
	id := uint16(ev.Keycode)
	code, ok := linuxCode(ev.UsagePage, id)
	if !ok {
		u.log.Debug().
			Uint16("usage_page", ev.UsagePage).
			Uint32("keycode", ev.Keycode).
			Msg("no Linux key for usage, ignoring")
		return nil
	}

	u.keyboardStateLock.Lock()
	var writeErr error
	write := func(code int, pressed bool) {
		if err := u.key(code, pressed); err != nil && writeErr == nil {
			writeErr = err
		}
	}

	if hid.IsModifier(ev.UsagePage, id) {
		bit := id - hid.UsageModifierFirst
		if ev.State {
			u.modifierHolds[bit]++
			if u.modifierHolds[bit] == 1 {
				u.explicit |= hid.ModifierMask(id)
				write(code, true)
			}
		} else {
			if u.modifierHolds[bit] > 0 {
				u.modifierHolds[bit]--
			}
			if u.modifierHolds[bit] == 0 {
				u.explicit &^= hid.ModifierMask(id)
				write(code, false)
			}
		}
	} else if ev.State {
		implicit := ev.ImplicitModifiers &^ u.explicit
		for _, mc := range modifierCodes(implicit) {
			write(mc, true)
		}
		write(code, true)
		if ev.UsagePage == hid.UsagePageKeyboard {
			u.held[byte(id)] = implicit
		}
	} else {
		write(code, false)
		implicit := ev.ImplicitModifiers
		if ev.UsagePage == hid.UsagePageKeyboard {
			implicit = u.held[byte(id)]
			delete(u.held, byte(id))
		}
		for _, mc := range modifierCodes(implicit &^ u.explicit) {
			write(mc, false)
		}
	}
	if err := u.sync(); err != nil && writeErr == nil {
		writeErr = err
	}

	state := u.updateKeysDown(ev)
	u.lastUserInput = time.Now()
	u.keyboardStateLock.Unlock()

	if u.onKeys != nil {
		u.onKeys(state)
	}
	return writeErr
}

// updateKeysDown must be called with keyboardStateLock held.
func (u *Backend) updateKeysDown(ev events.KeycodeStateChanged) KeysDownState {
	mod := u.explicit
	for _, implicit := range u.held {
		mod |= implicit
	}

	keys := u.keysDownState.Keys
	id := byte(ev.Keycode)
	if ev.UsagePage == hid.UsagePageKeyboard && !hid.IsModifier(ev.UsagePage, uint16(ev.Keycode)) {
		if ev.State {
			placed := false
			for i := range keys {
				if keys[i] == 0 {
					keys[i] = id
					placed = true
					break
				}
			}
			if !placed {
				u.log.Warn().Uint8("usage", id).Msg("keys down state full, key not tracked")
			}
		} else {
			for i := range keys {
				if keys[i] == id {
					keys[i] = 0
					break
				}
			}
		}
	}

	u.keysDownState = KeysDownState{Modifier: mod, Keys: keys}
	return KeysDownState{Modifier: mod, Keys: append([]byte(nil), keys...)}
}

// Run injects keycode events received on ch until ctx is done or ch closes.
// Other event types are ignored.
func (u *Backend) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			kc, isKeycode := ev.(events.KeycodeStateChanged)
			if !isKeycode {
				continue
			}
			if err := u.HandleKeycode(kc); err != nil {
				u.log.Warn().Err(err).Uint32("keycode", kc.Keycode).Msg("failed to inject key event")
			}
		}
	}
}
