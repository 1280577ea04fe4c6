//go:build linux

package threadid

import "golang.org/x/sys/unix"

// Get returns the OS thread id of the calling goroutine. The result is
// only stable while the goroutine is locked to its thread.
func Get() int {
	return unix.Gettid()
}
