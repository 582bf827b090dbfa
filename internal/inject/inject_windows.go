//go:build windows

package inject

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32        = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard = 1
	keyEventKeyUp = 0x0002
	vkBack        = 0x08
	vkControl     = 0x11
	vkV           = 0x56
)

// keybdInput mirrors KEYBDINPUT.
type keybdInput struct {
	vk        uint16
	scan      uint16
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// input mirrors INPUT for keyboard events. The padding covers the larger
// MOUSEINPUT member of the union.
type input struct {
	typ uint32
	ki  keybdInput
	_   [8]byte
}

type backend struct{}

func newBackend(*Injector) backend { return backend{} }

func keyDown(vk uint16) input { return input{typ: inputKeyboard, ki: keybdInput{vk: vk}} }
func keyUp(vk uint16) input {
	return input{typ: inputKeyboard, ki: keybdInput{vk: vk, flags: keyEventKeyUp}}
}

func sendInput(inputs ...input) error {
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func (backend) backspace(context.Context) error {
	return sendInput(keyDown(vkBack), keyUp(vkBack))
}

func (backend) paste(context.Context) error {
	return sendInput(keyDown(vkControl), keyDown(vkV), keyUp(vkV), keyUp(vkControl))
}

func (backend) available() (bool, string) {
	return true, "key injection available via SendInput"
}
