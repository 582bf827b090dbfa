//go:build windows

package focus

import (
	"context"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"expanderd/internal/expansion"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
)

type platform struct{}

func newPlatform(*Provider) platform { return platform{} }

func (platform) activeApp(ctx context.Context) expansion.ActiveAppInfo {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return expansion.UnknownApp()
	}

	info := expansion.ActiveAppInfo{WindowTitle: windowText(hwnd)}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil && pid != 0 {
		info.ProcessName = strings.ToLower(processImageName(pid))
	}
	return info
}

// windowText returns the title bar text of hwnd.
func windowText(hwnd windows.HWND) string {
	length, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if length == 0 {
		return ""
	}
	buf := make([]uint16, length+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), length+1)
	return windows.UTF16ToString(buf)
}

// processImageName returns the executable base name of pid.
func processImageName(pid uint32) string {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return filepath.Base(windows.UTF16ToString(buf[:size]))
}

func (platform) runningApps(ctx context.Context) ([]string, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var names []string
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		names = append(names, strings.ToLower(windows.UTF16ToString(entry.ExeFile[:])))
	}
	return names, nil
}

func (platform) available() (bool, string) {
	return true, "Windows window lookup available via Win32 API"
}
