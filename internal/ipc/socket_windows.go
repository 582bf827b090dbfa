//go:build windows

package ipc

import "os"

// SetSocketPermissions is a no-op on Windows; AF_UNIX sockets inherit the
// ACL of their directory.
func SetSocketPermissions(path string, mode os.FileMode) error {
	return nil
}

// CleanupSocket removes a stale socket file.
func CleanupSocket(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
