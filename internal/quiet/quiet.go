// Package quiet silences diagnostics that native libraries print straight to the
// process's stderr file descriptor, where no Go logger can intercept them.
//
// The redirect is process-wide. Overlapping scopes share it: the first scope to
// enter points fd 2 at the null device and the last one to leave restores the
// original descriptor.
package quiet

import "sync"

var (
	mu    sync.Mutex
	depth int
	saved = -1
)

// Run calls fn. Unless verbose is set, fd 2 is redirected to the null device while
// fn runs and restored when it returns or panics. When the redirect cannot be set
// up fn still runs, with diagnostics left visible.
func Run(verbose bool, fn func()) {
	if verbose {
		fn()
		return
	}

	if acquire() {
		defer release()
	}
	fn()
}

// Suppressed reports whether a scope currently holds the redirect.
func Suppressed() bool {
	mu.Lock()
	defer mu.Unlock()
	return depth > 0
}

func acquire() bool {
	mu.Lock()
	defer mu.Unlock()

	if depth == 0 {
		fd, err := redirect()
		if err != nil {
			return false
		}
		saved = fd
	}
	depth++
	return true
}

func release() {
	mu.Lock()
	defer mu.Unlock()

	depth--
	if depth > 0 {
		return
	}
	_ = restore(saved)
	saved = -1
}
