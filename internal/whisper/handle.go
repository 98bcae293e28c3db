//go:build cgo

package whisper

import (
	"runtime/cgo"
	"unsafe"
)

// boxFromHandle resolves the user-data pointer handed to engine callbacks. A deleted
// or foreign handle yields ok=false rather than a crash.
func boxFromHandle(userData unsafe.Pointer) (*callbackBox, bool) {
	if userData == nil {
		return nil, false
	}

	handle := *(*cgo.Handle)(userData)
	if handle == 0 {
		return nil, false
	}

	var value any
	func() {
		defer func() {
			if recover() != nil {
				value = nil
			}
		}()
		value = handle.Value()
	}()

	box, ok := value.(*callbackBox)
	return box, ok && box != nil
}
