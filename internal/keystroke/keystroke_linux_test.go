//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

const procDevices = `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
P: Phys=isa0060/serio0/input0
H: Handlers=sysrq kbd leds event3
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0011 Vendor=0002 Product=0007 Version=01b1
N: Name="SynPS/2 Synaptics TouchPad"
H: Handlers=mouse0 event5
B: KEY=e520 10000 0 0 0 0

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
H: Handlers=sysrq kbd leds event7`

func TestParseInputDevices(t *testing.T) {
	got := parseInputDevices(bufio.NewScanner(strings.NewReader(procDevices)))
	want := []string{"/dev/input/event3", "/dev/input/event7"}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("device %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEvdevStartUnknownLayout(t *testing.T) {
	s := New(Options{Layout: "colemak"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if _, err := s.Start(ctx); err == nil {
		s.Stop()
		t.Error("expected error for unknown layout")
	}
}

func TestInputEventSize(t *testing.T) {
	// struct input_event is 24 bytes on 64-bit and 16 bytes on 32-bit.
	if inputEventSize != 24 && inputEventSize != 16 {
		t.Errorf("unexpected input_event size %d", inputEventSize)
	}
}
