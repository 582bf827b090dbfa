//go:build darwin

package inject

import "context"

const (
	backspaceScript = `tell application "System Events" to key code 51`
	pasteScript     = `tell application "System Events" to keystroke "v" using command down`
)

type backend struct {
	i *Injector
}

func newBackend(i *Injector) backend { return backend{i: i} }

func (b backend) backspace(ctx context.Context) error {
	return b.i.run(ctx, "osascript", "-e", backspaceScript)
}

func (b backend) paste(ctx context.Context) error {
	return b.i.run(ctx, "osascript", "-e", pasteScript)
}

func (backend) available() (bool, string) {
	return true, "key injection via System Events (requires Accessibility permission)"
}
