//go:build !windows

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// watchResize calls fn with the new terminal size on every SIGWINCH until
// the returned stop function runs.
func watchResize(fd int, fn func(width, height int)) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
				if w, h, err := term.GetSize(fd); err == nil {
					fn(w, h)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
