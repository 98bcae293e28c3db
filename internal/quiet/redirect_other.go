//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package quiet

import "errors"

var errUnsupported = errors.New("stderr redirect not supported on this platform")

func redirect() (int, error) {
	return -1, errUnsupported
}

func restore(int) error {
	return nil
}
