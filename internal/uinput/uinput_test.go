package uinput

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/jetkvm/keymerge/internal/events"
	"github.com/jetkvm/keymerge/internal/hid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func readEvents(t *testing.T, buf *bytes.Buffer) []keyEvent {
	t.Helper()
	var out []keyEvent
	for buf.Len() > 0 {
		var ev inputEvent
		require.NoError(t, binary.Read(buf, binary.LittleEndian, &ev))
		out = append(out, keyEvent{ev.Type, ev.Code, ev.Value})
	}
	return out
}

func newTestBackend() (*Backend, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := zerolog.Nop()
	return newBackend(buf, &l), buf
}

func keycode(page uint16, id uint16, implicit, explicit byte, state bool) events.KeycodeStateChanged {
	return events.KeycodeStateChanged{
		UsagePage:         page,
		Keycode:           uint32(id),
		ImplicitModifiers: implicit,
		ExplicitModifiers: explicit,
		State:             state,
	}
}

var syn = keyEvent{EV_SYN, SYN_REPORT, 0}

func TestPlainKey(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x04, 0, 0, true)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_A, 1}, syn}, readEvents(t, buf))
	assert.Equal(t, KeysDownState{Keys: []byte{0x04, 0, 0, 0, 0, 0}}, u.KeysDown())

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x04, 0, 0, false)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_A, 0}, syn}, readEvents(t, buf))
	assert.Equal(t, KeysDownState{Keys: make([]byte, 6)}, u.KeysDown())
}

func TestImplicitModifiersWrapKey(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x1E, hid.ModLeftShift, 0, true)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_LEFTSHIFT, 1}, {EV_KEY, KEY_1, 1}, syn}, readEvents(t, buf))
	assert.Equal(t, hid.ModLeftShift, u.KeysDown().Modifier)

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x1E, hid.ModLeftShift, 0, false)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_1, 0}, {EV_KEY, KEY_LEFTSHIFT, 0}, syn}, readEvents(t, buf))
	assert.Zero(t, u.KeysDown().Modifier)
}

func TestExplicitModifierNotReleasedByImplicit(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0xE1, 0, hid.ModLeftShift, true)))
	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x1E, hid.ModLeftShift, 0, true)))
	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x1E, hid.ModLeftShift, 0, false)))

	assert.Equal(t, []keyEvent{
		{EV_KEY, KEY_LEFTSHIFT, 1}, syn,
		{EV_KEY, KEY_1, 1}, syn,
		{EV_KEY, KEY_1, 0}, syn,
	}, readEvents(t, buf))
	assert.Equal(t, hid.ModLeftShift, u.KeysDown().Modifier)
}

func TestModifierHeldByTwoEncodings(t *testing.T) {
	u, buf := newTestBackend()

	shift := keycode(hid.UsagePageKeyboard, 0xE1, 0, hid.ModLeftShift, true)
	shiftAltGr := keycode(hid.UsagePageKeyboard, 0xE1, 0, hid.ModLeftShift|hid.ModRightAlt, true)

	require.NoError(t, u.HandleKeycode(shift))
	require.NoError(t, u.HandleKeycode(shiftAltGr))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_LEFTSHIFT, 1}, syn, syn}, readEvents(t, buf))

	shift.State = false
	require.NoError(t, u.HandleKeycode(shift))
	assert.Equal(t, []keyEvent{syn}, readEvents(t, buf))
	assert.Equal(t, hid.ModLeftShift, u.KeysDown().Modifier, "second source still holds shift")

	shiftAltGr.State = false
	require.NoError(t, u.HandleKeycode(shiftAltGr))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_LEFTSHIFT, 0}, syn}, readEvents(t, buf))
	assert.Zero(t, u.KeysDown().Modifier)
}

func TestStrayModifierReleaseStillReleases(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0xE0, 0, hid.ModLeftCtrl, false)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_LEFTCTRL, 0}, syn}, readEvents(t, buf))
}

func TestConsumerKey(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageConsumer, 0xE9, 0, 0, true)))
	assert.Equal(t, []keyEvent{{EV_KEY, KEY_VOLUMEUP, 1}, syn}, readEvents(t, buf))
	assert.Equal(t, make([]byte, 6), u.KeysDown().Keys, "consumer keys are not report slots")
}

func TestUnknownUsageIgnored(t *testing.T) {
	u, buf := newTestBackend()

	require.NoError(t, u.HandleKeycode(keycode(0x01, 0x81, 0, 0, true)))
	assert.Zero(t, buf.Len())
}

func TestKeysDownCallback(t *testing.T) {
	u, _ := newTestBackend()

	var got []KeysDownState
	u.SetOnKeysDownChange(func(state KeysDownState) { got = append(got, state) })

	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x05, 0, 0, true)))
	require.NoError(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x06, 0, 0, true)))

	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x05, 0x06, 0, 0, 0, 0}, got[1].Keys)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("device gone") }

func TestWriteErrorReported(t *testing.T) {
	l := zerolog.Nop()
	u := newBackend(failingWriter{}, &l)

	assert.Error(t, u.HandleKeycode(keycode(hid.UsagePageKeyboard, 0x04, 0, 0, true)))
}

func TestRunConsumesKeycodeEvents(t *testing.T) {
	u, buf := newTestBackend()

	ch := make(chan events.Event, 4)
	ch <- events.PositionStateChanged{Position: 1, State: true}
	ch <- keycode(hid.UsagePageKeyboard, 0x2C, 0, 0, true)
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	u.Run(ctx, ch)

	assert.Equal(t, []keyEvent{{EV_KEY, KEY_SPACE, 1}, syn}, readEvents(t, buf))
}
