//go:build windows

package cli

// watchResize is a no-op: Windows consoles have no SIGWINCH.
func watchResize(fd int, fn func(width, height int)) (stop func()) {
	return func() {}
}
