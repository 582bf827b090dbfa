//go:build linux

package inject

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

func (r *recorder) run(ctx context.Context, name string, args ...string) error {
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return nil
}

func TestInjectorCommands(t *testing.T) {
	tests := []struct {
		tool      string
		backspace string
		paste     string
	}{
		{"xdotool", "xdotool key --clearmodifiers BackSpace", "xdotool key --clearmodifiers ctrl+v"},
		{"wtype", "wtype -k BackSpace", "wtype -M ctrl -k v -m ctrl"},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			rec := &recorder{}
			i := New()
			i.run = rec.run
			i.backend = backend{i: i, tool: tt.tool}

			require.NoError(t, i.Backspace())
			require.NoError(t, i.Paste())
			assert.Equal(t, []string{tt.backspace, tt.paste}, rec.calls)
		})
	}
}

func TestInjectorWithoutDisplay(t *testing.T) {
	i := New()
	i.backend = backend{i: i}

	assert.ErrorIs(t, i.Backspace(), ErrUnsupported)
	assert.ErrorIs(t, i.Paste(), ErrUnsupported)
	ok, _ := i.Available()
	assert.False(t, ok)
}

func TestDetectTool(t *testing.T) {
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	assert.Equal(t, "wtype", detectTool())

	t.Setenv("DISPLAY", ":1")
	assert.Equal(t, "xdotool", detectTool())
}
