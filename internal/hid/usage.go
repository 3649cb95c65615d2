package hid

// Encoded keycodes pack one key activation into a uint32:
//
//	bits  0..15  usage id
//	bits 16..23  usage page
//	bits 24..31  implicit modifier bits (same layout as the HID report modifier byte)
const (
	UsagePageKeyboard  uint16 = 0x07
	UsagePageConsumer  uint16 = 0x0C
	UsageModifierFirst uint16 = 0xE0
	UsageModifierLast  uint16 = 0xE7
)

// Modifier masks, first byte of a boot keyboard report.
const (
	ModLeftCtrl   byte = 0x01
	ModLeftShift  byte = 0x02
	ModLeftAlt    byte = 0x04
	ModLeftMeta   byte = 0x08
	ModRightCtrl  byte = 0x10
	ModRightShift byte = 0x20
	ModRightAlt   byte = 0x40
	ModRightMeta  byte = 0x80
)

// Usage builds an encoded keycode without modifier bits.
func Usage(page, id uint16) uint32 {
	return uint32(page&0xFF)<<16 | uint32(id)
}

// ApplyMods folds implicit modifier bits into an encoded keycode.
func ApplyMods(mods byte, encoded uint32) uint32 {
	return uint32(mods)<<24 | encoded
}

func UsagePage(encoded uint32) uint16 { return uint16((encoded >> 16) & 0xFF) }

func UsageID(encoded uint32) uint16 { return uint16(encoded & 0xFFFF) }

// SelectMods returns the modifier bits carried by an encoded keycode.
func SelectMods(encoded uint32) byte { return byte(encoded >> 24) }

// IsModifier reports whether page/id is one of the eight keyboard modifier usages.
func IsModifier(page, id uint16) bool {
	return page == UsagePageKeyboard && id >= UsageModifierFirst && id <= UsageModifierLast
}

// ModifierMask maps a modifier usage (0xE0..0xE7) to its report bit. Zero for
// anything else.
func ModifierMask(id uint16) byte {
	switch id {
	case 0xE0:
		return ModLeftCtrl
	case 0xE1:
		return ModLeftShift
	case 0xE2:
		return ModLeftAlt
	case 0xE3:
		return ModLeftMeta
	case 0xE4:
		return ModRightCtrl
	case 0xE5:
		return ModRightShift
	case 0xE6:
		return ModRightAlt
	case 0xE7:
		return ModRightMeta
	default:
		return 0
	}
}
