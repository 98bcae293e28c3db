//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package quiet

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// redirect points fd 2 at the null device and returns a close-on-exec duplicate of
// the previous descriptor.
func redirect() (int, error) {
	prev, err := unix.FcntlInt(uintptr(unix.Stderr), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("duplicate stderr: %w", err)
	}

	null, err := unix.Open(os.DevNull, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(prev)
		return -1, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer unix.Close(null)

	if err := dup2(null, unix.Stderr); err != nil {
		_ = unix.Close(prev)
		return -1, fmt.Errorf("redirect stderr: %w", err)
	}
	return prev, nil
}

func restore(prev int) error {
	if prev < 0 {
		return nil
	}
	defer unix.Close(prev)

	if err := dup2(prev, unix.Stderr); err != nil {
		return fmt.Errorf("restore stderr: %w", err)
	}
	return nil
}
