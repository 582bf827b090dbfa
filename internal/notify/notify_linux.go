//go:build linux

package notify

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = "/org/freedesktop/Notifications"
	notifyMethod = "org.freedesktop.Notifications.Notify"

	// expireTimeout is in milliseconds.
	expireTimeout = int32(8000)
)

// DesktopReporter posts freedesktop notifications on the session bus.
// Every report also goes to the fallback so it reaches the log.
type DesktopReporter struct {
	mu        sync.Mutex
	conn      *dbus.Conn
	replaceID uint32
	fallback  Reporter
	connect   func() (*dbus.Conn, error)
}

func newDesktop(fallback Reporter) Reporter {
	return &DesktopReporter{fallback: fallback, connect: dbus.SessionBus}
}

// Report logs the message and shows it as a desktop notification. A new
// notification replaces the previous one instead of stacking.
func (d *DesktopReporter) Report(title, message string) {
	d.fallback.Report(title, message)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		conn, err := d.connect()
		if err != nil {
			return
		}
		d.conn = conn
	}

	var id uint32
	obj := d.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyMethod, 0, notifyArgs(title, message, d.replaceID)...)
	if call.Err != nil {
		// The shared session bus stays open; drop the reference so the next
		// report reconnects if the bus went away.
		d.conn = nil
		return
	}
	if err := call.Store(&id); err == nil {
		d.replaceID = id
	}
}

// notifyArgs builds the Notify argument list:
// app_name, replaces_id, app_icon, summary, body, actions, hints, timeout.
func notifyArgs(title, message string, replaceID uint32) []any {
	return []any{
		AppName,
		replaceID,
		"dialog-warning",
		title,
		message,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		expireTimeout,
	}
}
