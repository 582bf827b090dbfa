package keystroke

import "testing"

func press(tr *translator, code uint16) (Event, bool)   { return tr.key(code, 1) }
func release(tr *translator, code uint16) (Event, bool) { return tr.key(code, 0) }

func TestTranslatorLetters(t *testing.T) {
	tr, err := newTranslator("us")
	if err != nil {
		t.Fatal(err)
	}

	ev, ok := press(tr, 30) // KEY_A
	if !ok || ev.Kind != KindChar || ev.Rune != 'a' {
		t.Errorf("KEY_A = %+v, %v", ev, ok)
	}
	if _, ok := release(tr, 30); ok {
		t.Error("release should not produce an event")
	}
}

func TestTranslatorShift(t *testing.T) {
	tr, _ := newTranslator("us")

	if _, ok := press(tr, keyLeftShift); ok {
		t.Error("shift press should not produce an event")
	}
	if ev, _ := press(tr, 53); ev.Rune != '?' { // KEY_SLASH
		t.Errorf("shift+slash = %q, want '?'", ev.Rune)
	}
	if ev, _ := press(tr, 23); ev.Rune != 'I' { // KEY_I
		t.Errorf("shift+i = %q, want 'I'", ev.Rune)
	}
	release(tr, keyLeftShift)
	if ev, _ := press(tr, 53); ev.Rune != '/' {
		t.Errorf("slash = %q, want '/'", ev.Rune)
	}
}

func TestTranslatorBothShiftKeys(t *testing.T) {
	tr, _ := newTranslator("us")
	press(tr, keyLeftShift)
	press(tr, keyRightShift)
	release(tr, keyLeftShift)
	if ev, _ := press(tr, 30); ev.Rune != 'A' {
		t.Errorf("right shift still held: got %q", ev.Rune)
	}
}

func TestTranslatorCapsLock(t *testing.T) {
	tr, _ := newTranslator("us")
	press(tr, keyCapsLock)
	release(tr, keyCapsLock)

	if ev, _ := press(tr, 30); ev.Rune != 'A' {
		t.Errorf("caps+a = %q, want 'A'", ev.Rune)
	}
	if ev, _ := press(tr, 2); ev.Rune != '1' { // KEY_1 is not affected by caps
		t.Errorf("caps+1 = %q, want '1'", ev.Rune)
	}
	press(tr, keyLeftShift)
	if ev, _ := press(tr, 30); ev.Rune != 'a' {
		t.Errorf("caps+shift+a = %q, want 'a'", ev.Rune)
	}
}

func TestTranslatorSpecialKeys(t *testing.T) {
	tr, _ := newTranslator("us")
	tests := []struct {
		code uint16
		kind Kind
	}{
		{keyBackspace, KindBackspace},
		{keySpace, KindSpace},
		{keyEnter, KindEnter},
		{keyKPEnter, KindEnter},
		{keyTab, KindOther},
		{keyEsc, KindOther},
		{103, KindOther}, // KEY_UP
		{59, KindOther},  // KEY_F1
	}
	for _, tt := range tests {
		ev, ok := press(tr, tt.code)
		if !ok || ev.Kind != tt.kind {
			t.Errorf("code %d = %v, %v; want %v", tt.code, ev.Kind, ok, tt.kind)
		}
	}
}

func TestTranslatorChordIsOther(t *testing.T) {
	tr, _ := newTranslator("us")
	press(tr, keyLeftCtrl)
	if ev, ok := press(tr, 47); !ok || ev.Kind != KindOther { // ctrl+v
		t.Errorf("ctrl+v = %+v, %v; want KindOther", ev, ok)
	}
	release(tr, keyLeftCtrl)
	if ev, _ := press(tr, 47); ev.Kind != KindChar || ev.Rune != 'v' {
		t.Errorf("v after ctrl release = %+v", ev)
	}
}

func TestTranslatorAutorepeat(t *testing.T) {
	tr, _ := newTranslator("us")
	if ev, ok := tr.key(30, 2); !ok || ev.Rune != 'a' {
		t.Errorf("autorepeat should type again: %+v, %v", ev, ok)
	}
	tr.key(keyLeftShift, 1)
	tr.key(keyLeftShift, 2)
	tr.key(keyLeftShift, 0)
	if ev, _ := press(tr, 30); ev.Rune != 'a' {
		t.Errorf("shift autorepeat leaked: %q", ev.Rune)
	}
}

func TestUnknownLayout(t *testing.T) {
	if _, err := newTranslator("dvorak"); err == nil {
		t.Error("expected error for unknown layout")
	}
}

func TestTranslatorLoneModifiersProduceNoEvent(t *testing.T) {
	tr, _ := newTranslator("us")

	for _, code := range []uint16{keyLeftShift, keyRightShift, keyLeftCtrl, keyRightCtrl, keyLeftAlt, keyRightAlt, keyLeftMeta, keyRightMeta} {
		if ev, ok := press(tr, code); ok {
			t.Errorf("press %d = %+v, want no event", code, ev)
		}
		if _, ok := release(tr, code); ok {
			t.Errorf("release %d produced an event", code)
		}
	}
	if ev, ok := press(tr, 30); !ok || ev.Kind != KindChar {
		t.Errorf("KEY_A after lone modifiers = %+v, %v", ev, ok)
	}
}
