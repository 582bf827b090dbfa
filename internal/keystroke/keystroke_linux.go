//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EvdevSource reads key events from /dev/input on Linux.
type EvdevSource struct {
	baseSource
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

func newPlatformSource(opts Options) Source {
	return &EvdevSource{
		opts:   opts,
		logger: slog.Default().With("component", "keystroke_evdev"),
	}
}

// Available checks if we can read input devices.
func (s *EvdevSource) Available() (bool, string) {
	devices, err := s.devices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (s *EvdevSource) devices() ([]string, error) {
	if s.opts.Device != "" {
		return []string{s.opts.Device}, nil
	}
	return findKeyboardDevices()
}

// findKeyboardDevices finds /dev/input devices that are keyboards.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	devices := parseInputDevices(bufio.NewScanner(f))

	// by-id links point at the same nodes; keep only unseen ones.
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d] = true
	}
	matches, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
	for _, m := range matches {
		target, err := filepath.EvalSymlinks(m)
		if err != nil || seen[target] {
			continue
		}
		seen[target] = true
		devices = append(devices, target)
	}
	return devices, nil
}

// parseInputDevices extracts keyboard event nodes from the
// /proc/bus/input/devices format. A device counts as a keyboard when its
// handlers include "kbd" and an event node.
func parseInputDevices(scanner *bufio.Scanner) []string {
	var devices []string
	var handler string
	isKeyboard := false

	flush := func() {
		if isKeyboard && handler != "" {
			devices = append(devices, handler)
		}
		handler = ""
		isKeyboard = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "H: Handlers=") {
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if part == "kbd" {
					isKeyboard = true
				}
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		}
		if line == "" {
			flush()
		}
	}
	flush()
	return devices
}

// Start begins reading keyboard events from every device.
func (s *EvdevSource) Start(ctx context.Context) (<-chan Event, error) {
	if _, ok := layouts[s.opts.Layout]; !ok {
		return nil, fmt.Errorf("unknown keyboard layout %q", s.opts.Layout)
	}
	devices, err := s.devices()
	if err != nil || len(devices) == 0 {
		return nil, ErrNotAvailable
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			s.logger.Debug("skip input device", "device", dev, "error", err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no readable keyboard device", ErrNotAvailable)
	}

	ch, err := s.open(s.opts.BufferSize)
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, f := range files {
		f := f
		tr, _ := newTranslator(s.opts.Layout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.readLoop(ctx, f, tr)
		}()
	}

	go func() {
		wg.Wait()
		s.closeChan(ch)
		close(done)
	}()

	s.logger.Info("keyboard capture started", "devices", len(files))
	return ch, nil
}

// timevalSize is the size of struct timeval in the kernel input_event.
const timevalSize = int(unsafe.Sizeof(unix.Timeval{}))

// inputEventSize is sizeof(struct input_event).
const inputEventSize = timevalSize + 8

const evKey = 1

// readLoop decodes input_event records from f until ctx is done. Poll with a
// short timeout keeps Stop prompt without closing f under a blocked read.
func (s *EvdevSource) readLoop(ctx context.Context, f *os.File, tr *translator) {
	defer f.Close()

	fd := int(f.Fd())
	buf := make([]byte, inputEventSize*64)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := unix.Poll(fds, 100)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.logger.Warn("poll input device", "device", f.Name(), "error", err)
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			s.logger.Warn("input device went away", "device", f.Name())
			return
		}

		read, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			s.logger.Warn("read input device", "device", f.Name(), "error", err)
			return
		}
		for off := 0; off+inputEventSize <= read; off += inputEventSize {
			rec := buf[off : off+inputEventSize]
			typ := binary.LittleEndian.Uint16(rec[timevalSize : timevalSize+2])
			if typ != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(rec[timevalSize+2 : timevalSize+4])
			value := int32(binary.LittleEndian.Uint32(rec[timevalSize+4 : timevalSize+8]))
			if ev, ok := tr.key(code, value); ok {
				ev.Time = time.Now()
				s.emit(ev)
			}
		}
	}
}

// Stop stops reading and waits for the device goroutines to exit.
func (s *EvdevSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
