package keystroke

import "strings"

// Linux input event constants (linux/input-event-codes.h).
const (
	evKey = 0x01

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

// Modifier key codes.
const (
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeCapsLock   = 58
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeLeftMeta   = 125
	codeRightMeta  = 126
)

type keyDef struct {
	plain   string // character or key name
	shifted string // character with shift held; empty for named keys
}

func (k keyDef) printable() bool { return k.shifted != "" }

// usLayout maps evdev key codes to a US keyboard layout.
var usLayout = map[uint16]keyDef{
	1:  {plain: "esc"},
	2:  {"1", "!"},
	3:  {"2", "@"},
	4:  {"3", "#"},
	5:  {"4", "$"},
	6:  {"5", "%"},
	7:  {"6", "^"},
	8:  {"7", "&"},
	9:  {"8", "*"},
	10: {"9", "("},
	11: {"0", ")"},
	12: {"-", "_"},
	13: {"=", "+"},
	14: {plain: "backspace"},
	15: {plain: "tab"},
	16: {"q", "Q"},
	17: {"w", "W"},
	18: {"e", "E"},
	19: {"r", "R"},
	20: {"t", "T"},
	21: {"y", "Y"},
	22: {"u", "U"},
	23: {"i", "I"},
	24: {"o", "O"},
	25: {"p", "P"},
	26: {"[", "{"},
	27: {"]", "}"},
	28: {plain: "enter"},
	30: {"a", "A"},
	31: {"s", "S"},
	32: {"d", "D"},
	33: {"f", "F"},
	34: {"g", "G"},
	35: {"h", "H"},
	36: {"j", "J"},
	37: {"k", "K"},
	38: {"l", "L"},
	39: {";", ":"},
	40: {"'", "\""},
	41: {"`", "~"},
	43: {"\\", "|"},
	44: {"z", "Z"},
	45: {"x", "X"},
	46: {"c", "C"},
	47: {"v", "V"},
	48: {"b", "B"},
	49: {"n", "N"},
	50: {"m", "M"},
	51: {",", "<"},
	52: {".", ">"},
	53: {"/", "?"},
	57: {plain: "space"},
	59: {plain: "f1"},
	60: {plain: "f2"},
	61: {plain: "f3"},
	62: {plain: "f4"},
	63: {plain: "f5"},
	64: {plain: "f6"},
	65: {plain: "f7"},
	66: {plain: "f8"},
	67: {plain: "f9"},
	68: {plain: "f10"},
	87: {plain: "f11"},
	88: {plain: "f12"},
	96: {plain: "enter"},
	102: {plain: "home"},
	103: {plain: "up"},
	104: {plain: "page up"},
	105: {plain: "left"},
	106: {plain: "right"},
	107: {plain: "end"},
	108: {plain: "down"},
	109: {plain: "page down"},
	110: {plain: "insert"},
	111: {plain: "delete"},
}

// Keymap turns raw key codes into event names, tracking modifier state.
// It is not safe for concurrent use.
type Keymap struct {
	ctrl, alt, shift, super int // held keys per modifier (left + right)
	caps                    bool
}

func adjust(n *int, value int32) {
	switch value {
	case keyPress:
		*n++
	case keyRelease:
		if *n > 0 {
			*n--
		}
	}
}

// Translate feeds one EV_KEY event. It returns the event name for presses and
// auto-repeats of non-modifier keys; modifier changes and releases return
// false.
func (k *Keymap) Translate(code uint16, value int32) (string, bool) {
	switch code {
	case codeLeftCtrl, codeRightCtrl:
		adjust(&k.ctrl, value)
		return "", false
	case codeLeftShift, codeRightShift:
		adjust(&k.shift, value)
		return "", false
	case codeLeftAlt, codeRightAlt:
		adjust(&k.alt, value)
		return "", false
	case codeLeftMeta, codeRightMeta:
		adjust(&k.super, value)
		return "", false
	case codeCapsLock:
		if value == keyPress {
			k.caps = !k.caps
		}
		return "", false
	}

	if value != keyPress && value != keyRepeat {
		return "", false
	}
	def, ok := usLayout[code]
	if !ok {
		return "", false
	}

	if k.ctrl > 0 || k.alt > 0 || k.super > 0 {
		return k.chord(def.plain), true
	}
	if !def.printable() {
		return def.plain, true
	}

	shifted := k.shift > 0
	if k.caps && isLetter(def.plain) {
		shifted = !shifted
	}
	if shifted {
		return def.shifted, true
	}
	return def.plain, true
}

func (k *Keymap) chord(base string) string {
	parts := make([]string, 0, 5)
	if k.ctrl > 0 {
		parts = append(parts, "ctrl")
	}
	if k.alt > 0 {
		parts = append(parts, "alt")
	}
	if k.shift > 0 {
		parts = append(parts, "shift")
	}
	if k.super > 0 {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, base), "+")
}

// Reset forgets held modifiers. Caps lock state is kept.
func (k *Keymap) Reset() {
	k.ctrl, k.alt, k.shift, k.super = 0, 0, 0, 0
}

func isLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'a' && s[0] <= 'z'
}

// NormalizeChord lowercases a chord and orders its modifiers the way
// Translate names them, so "Shift+Ctrl+Q" and "ctrl+shift+q" compare equal.
func NormalizeChord(chord string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "+")
	if len(parts) == 1 {
		return aliasKey(parts[0])
	}

	base := aliasKey(strings.TrimSpace(parts[len(parts)-1]))
	held := map[string]bool{}
	for _, p := range parts[:len(parts)-1] {
		switch p = strings.TrimSpace(p); p {
		case "control":
			p = "ctrl"
		case "win", "meta", "cmd":
			p = "super"
		}
		held[p] = true
	}

	out := make([]string, 0, len(parts))
	for _, m := range []string{"ctrl", "alt", "shift", "super"} {
		if held[m] {
			out = append(out, m)
		}
	}
	return strings.Join(append(out, base), "+")
}

func aliasKey(k string) string {
	switch k {
	case "escape":
		return "esc"
	case "return":
		return "enter"
	case "pgup":
		return "page up"
	case "pgdn":
		return "page down"
	}
	return k
}
