//go:build !linux

package threadid

// Get returns 0 on platforms without a cheap thread id syscall.
func Get() int {
	return 0
}
