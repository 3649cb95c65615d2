package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	encoded := ApplyMods(ModLeftShift|ModLeftCtrl, Usage(UsagePageKeyboard, 0x04))

	assert.Equal(t, uint32(0x03070004), encoded)
	assert.Equal(t, UsagePageKeyboard, UsagePage(encoded))
	assert.Equal(t, uint16(0x04), UsageID(encoded))
	assert.Equal(t, ModLeftShift|ModLeftCtrl, SelectMods(encoded))
}

func TestDecodeWithoutPage(t *testing.T) {
	assert.Equal(t, uint16(0), UsagePage(0x000004))
	assert.Equal(t, uint16(4), UsageID(0x000004))
	assert.Equal(t, byte(0), SelectMods(0x000004))
}

func TestIsModifier(t *testing.T) {
	for id := UsageModifierFirst; id <= UsageModifierLast; id++ {
		assert.True(t, IsModifier(UsagePageKeyboard, id), "usage %#x", id)
		assert.NotZero(t, ModifierMask(id), "usage %#x", id)
	}

	assert.False(t, IsModifier(UsagePageKeyboard, 0x04))
	assert.False(t, IsModifier(UsagePageKeyboard, 0xE8))
	assert.False(t, IsModifier(UsagePageConsumer, 0xE2))
	assert.Zero(t, ModifierMask(0x2C))
}

func TestModifierMaskDistinct(t *testing.T) {
	var seen byte
	for id := UsageModifierFirst; id <= UsageModifierLast; id++ {
		mask := ModifierMask(id)
		assert.Zero(t, seen&mask, "usage %#x overlaps", id)
		seen |= mask
	}
	assert.Equal(t, byte(0xFF), seen)
}
