//go:build !whispercpp

package whisper

// NativeAvailable reports whether whisper.cpp is linked into this binary.
func NativeAvailable() bool { return false }

func loadNative(string, contextParams) (nativeContext, error) {
	return nil, ErrNativeUnavailable
}
