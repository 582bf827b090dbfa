//go:build !linux

package notify

func newDesktop(fallback Reporter) Reporter {
	return fallback
}
