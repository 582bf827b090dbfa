package keystroke

import "fmt"

// Linux input event codes (linux/input-event-codes.h) used by the key map.
const (
	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyNumLock    = 69
	keyKPEnter    = 96
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126
)

// keyPair holds the unshifted and shifted rune for a scan code.
type keyPair struct {
	plain, shifted rune
}

// usLayout maps evdev key codes to runes on a US QWERTY keyboard.
var usLayout = map[uint16]keyPair{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
	// Keypad, assuming NumLock on.
	55: {'*', '*'}, 71: {'7', '7'}, 72: {'8', '8'}, 73: {'9', '9'}, 74: {'-', '-'},
	75: {'4', '4'}, 76: {'5', '5'}, 77: {'6', '6'}, 78: {'+', '+'},
	79: {'1', '1'}, 80: {'2', '2'}, 81: {'3', '3'}, 82: {'0', '0'}, 83: {'.', '.'},
	98: {'/', '/'},
}

// layouts lists the built-in key maps by name.
var layouts = map[string]map[uint16]keyPair{
	"us": usLayout,
}

// translator turns raw scan codes into Events while tracking modifier state.
type translator struct {
	layout   map[uint16]keyPair
	shift    int
	ctrl     int
	alt      int
	meta     int
	capsLock bool
}

func newTranslator(layout string) (*translator, error) {
	m, ok := layouts[layout]
	if !ok {
		return nil, fmt.Errorf("unknown keyboard layout %q", layout)
	}
	return &translator{layout: m}, nil
}

// key processes a key transition. value is 0 for release, 1 for press and 2
// for autorepeat. It returns false when the transition produces no event:
// releases and modifier presses only update state. A modifier pressed on its
// own therefore leaves the matcher buffer intact, so typing shift for a
// capital letter inside a prefix does not reset it. Only a chord (ctrl, alt
// or meta held with another key) is reported as KindOther.
func (t *translator) key(code uint16, value int32) (Event, bool) {
	down := value != 0
	switch code {
	case keyLeftShift, keyRightShift:
		t.shift = adjust(t.shift, down, value)
		return Event{}, false
	case keyLeftCtrl, keyRightCtrl:
		t.ctrl = adjust(t.ctrl, down, value)
		return Event{}, false
	case keyLeftAlt, keyRightAlt:
		t.alt = adjust(t.alt, down, value)
		return Event{}, false
	case keyLeftMeta, keyRightMeta:
		t.meta = adjust(t.meta, down, value)
		return Event{}, false
	case keyCapsLock:
		if value == 1 {
			t.capsLock = !t.capsLock
		}
		return Event{}, false
	case keyNumLock:
		return Event{}, false
	}
	if !down {
		return Event{}, false
	}

	// Shortcut chords edit text in ways the buffer cannot follow.
	if t.ctrl > 0 || t.alt > 0 || t.meta > 0 {
		return Key(KindOther), true
	}

	switch code {
	case keyBackspace:
		return Key(KindBackspace), true
	case keySpace:
		return Key(KindSpace), true
	case keyEnter, keyKPEnter:
		return Key(KindEnter), true
	}

	pair, ok := t.layout[code]
	if !ok {
		return Key(KindOther), true
	}
	r := pair.plain
	upper := t.shift > 0
	if t.capsLock && pair.plain >= 'a' && pair.plain <= 'z' {
		upper = !upper
	}
	if upper {
		r = pair.shifted
	}
	return Event{Kind: KindChar, Rune: r}, true
}

// adjust tracks how many keys of a modifier pair are held. Autorepeat leaves
// the count unchanged.
func adjust(held int, down bool, value int32) int {
	switch {
	case value == 2:
		return held
	case down:
		return held + 1
	case held > 0:
		return held - 1
	default:
		return 0
	}
}
