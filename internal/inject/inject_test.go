package inject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipboardWriteText(t *testing.T) {
	var got string
	c := &Clipboard{write: func(s string) error { got = s; return nil }}

	require.NoError(t, c.WriteText("Best,\nAlice"))
	assert.Equal(t, "Best,\nAlice", got)
}

func TestClipboardWriteError(t *testing.T) {
	c := &Clipboard{write: func(string) error { return errors.New("xclip: exit status 1") }}

	err := c.WriteText("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write clipboard")
}

func TestClipboardUnsupported(t *testing.T) {
	c := &Clipboard{unsupported: true}

	assert.ErrorIs(t, c.WriteText("x"), ErrUnsupported)

	ok, _ := c.Available()
	assert.False(t, ok)
}
