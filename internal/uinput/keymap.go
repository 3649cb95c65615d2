package uinput

import "github.com/jetkvm/keymerge/internal/hid"

// Linux input key codes.
const (
	KEY_RESERVED   = 0
	KEY_ESC        = 1
	KEY_1          = 2
	KEY_2          = 3
	KEY_3          = 4
	KEY_4          = 5
	KEY_5          = 6
	KEY_6          = 7
	KEY_7          = 8
	KEY_8          = 9
	KEY_9          = 10
	KEY_0          = 11
	KEY_MINUS      = 12
	KEY_EQUAL      = 13
	KEY_BACKSPACE  = 14
	KEY_TAB        = 15
	KEY_Q          = 16
	KEY_W          = 17
	KEY_E          = 18
	KEY_R          = 19
	KEY_T          = 20
	KEY_Y          = 21
	KEY_U          = 22
	KEY_I          = 23
	KEY_O          = 24
	KEY_P          = 25
	KEY_LEFTBRACE  = 26
	KEY_RIGHTBRACE = 27
	KEY_ENTER      = 28
	KEY_LEFTCTRL   = 29
	KEY_A          = 30
	KEY_S          = 31
	KEY_D          = 32
	KEY_F          = 33
	KEY_G          = 34
	KEY_H          = 35
	KEY_J          = 36
	KEY_K          = 37
	KEY_L          = 38
	KEY_SEMICOLON  = 39
	KEY_APOSTROPHE = 40
	KEY_GRAVE      = 41
	KEY_LEFTSHIFT  = 42
	KEY_BACKSLASH  = 43
	KEY_Z          = 44
	KEY_X          = 45
	KEY_C          = 46
	KEY_V          = 47
	KEY_B          = 48
	KEY_N          = 49
	KEY_M          = 50
	KEY_COMMA      = 51
	KEY_DOT        = 52
	KEY_SLASH      = 53
	KEY_RIGHTSHIFT = 54
	KEY_KPASTERISK = 55
	KEY_LEFTALT    = 56
	KEY_SPACE      = 57
	KEY_CAPSLOCK   = 58
	KEY_F1         = 59
	KEY_F2         = 60
	KEY_F3         = 61
	KEY_F4         = 62
	KEY_F5         = 63
	KEY_F6         = 64
	KEY_F7         = 65
	KEY_F8         = 66
	KEY_F9         = 67
	KEY_F10        = 68
	KEY_NUMLOCK    = 69
	KEY_SCROLLLOCK = 70
	KEY_F11        = 87
	KEY_F12        = 88
	KEY_RIGHTCTRL  = 97
	KEY_RIGHTALT   = 100
	KEY_HOME       = 102
	KEY_UP         = 103
	KEY_PAGEUP     = 104
	KEY_LEFT       = 105
	KEY_RIGHT      = 106
	KEY_END        = 107
	KEY_DOWN       = 108
	KEY_PAGEDOWN   = 109
	KEY_INSERT     = 110
	KEY_DELETE     = 111
	KEY_MUTE       = 113
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
	KEY_LEFTMETA   = 125
	KEY_RIGHTMETA  = 126
	KEY_NEXTSONG   = 163
	KEY_PLAYPAUSE  = 164
	KEY_PREVSONG   = 165
)

// Keyboard page usages.
var keyboardToLinux = map[uint16]int{
	0x04: KEY_A, 0x05: KEY_B, 0x06: KEY_C, 0x07: KEY_D, 0x08: KEY_E, 0x09: KEY_F,
	0x0A: KEY_G, 0x0B: KEY_H, 0x0C: KEY_I, 0x0D: KEY_J, 0x0E: KEY_K, 0x0F: KEY_L,
	0x10: KEY_M, 0x11: KEY_N, 0x12: KEY_O, 0x13: KEY_P, 0x14: KEY_Q, 0x15: KEY_R,
	0x16: KEY_S, 0x17: KEY_T, 0x18: KEY_U, 0x19: KEY_V, 0x1A: KEY_W, 0x1B: KEY_X,
	0x1C: KEY_Y, 0x1D: KEY_Z,

	0x1E: KEY_1, 0x1F: KEY_2, 0x20: KEY_3, 0x21: KEY_4, 0x22: KEY_5,
	0x23: KEY_6, 0x24: KEY_7, 0x25: KEY_8, 0x26: KEY_9, 0x27: KEY_0,

	0x28: KEY_ENTER,
	0x29: KEY_ESC,
	0x2A: KEY_BACKSPACE,
	0x2B: KEY_TAB,
	0x2C: KEY_SPACE,
	0x2D: KEY_MINUS,
	0x2E: KEY_EQUAL,
	0x2F: KEY_LEFTBRACE,
	0x30: KEY_RIGHTBRACE,
	0x31: KEY_BACKSLASH,
	0x33: KEY_SEMICOLON,
	0x34: KEY_APOSTROPHE,
	0x35: KEY_GRAVE,
	0x36: KEY_COMMA,
	0x37: KEY_DOT,
	0x38: KEY_SLASH,
	0x39: KEY_CAPSLOCK,

	0x3A: KEY_F1, 0x3B: KEY_F2, 0x3C: KEY_F3, 0x3D: KEY_F4, 0x3E: KEY_F5, 0x3F: KEY_F6,
	0x40: KEY_F7, 0x41: KEY_F8, 0x42: KEY_F9, 0x43: KEY_F10, 0x44: KEY_F11, 0x45: KEY_F12,

	0x47: KEY_SCROLLLOCK,
	0x49: KEY_INSERT,
	0x4A: KEY_HOME,
	0x4B: KEY_PAGEUP,
	0x4C: KEY_DELETE,
	0x4D: KEY_END,
	0x4E: KEY_PAGEDOWN,
	0x4F: KEY_RIGHT,
	0x50: KEY_LEFT,
	0x51: KEY_DOWN,
	0x52: KEY_UP,
	0x53: KEY_NUMLOCK,
	0x55: KEY_KPASTERISK,
}

var modifierToLinux = map[uint16]int{
	0xE0: KEY_LEFTCTRL,
	0xE1: KEY_LEFTSHIFT,
	0xE2: KEY_LEFTALT,
	0xE3: KEY_LEFTMETA,
	0xE4: KEY_RIGHTCTRL,
	0xE5: KEY_RIGHTSHIFT,
	0xE6: KEY_RIGHTALT,
	0xE7: KEY_RIGHTMETA,
}

// Consumer page usages.
var consumerToLinux = map[uint16]int{
	0xB5: KEY_NEXTSONG,
	0xB6: KEY_PREVSONG,
	0xCD: KEY_PLAYPAUSE,
	0xE2: KEY_MUTE,
	0xE9: KEY_VOLUMEUP,
	0xEA: KEY_VOLUMEDOWN,
}

// linuxCode resolves a usage to a Linux key code.
func linuxCode(page, id uint16) (int, bool) {
	var code int
	var ok bool
	switch page {
	case hid.UsagePageKeyboard:
		if code, ok = modifierToLinux[id]; !ok {
			code, ok = keyboardToLinux[id]
		}
	case hid.UsagePageConsumer:
		code, ok = consumerToLinux[id]
	}
	return code, ok
}

// modifierCodes returns the Linux codes for each bit set in mods, lowest bit first.
func modifierCodes(mods byte) []int {
	var codes []int
	for id := hid.UsageModifierFirst; id <= hid.UsageModifierLast; id++ {
		if mods&hid.ModifierMask(id) != 0 {
			codes = append(codes, modifierToLinux[id])
		}
	}
	return codes
}
