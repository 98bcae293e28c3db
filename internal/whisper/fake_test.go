package whisper

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/whispercppkit/whispercppkit/internal/quiet"
)

// fakeNative stands in for the engine. script runs inside full with the box the
// session handed over, so tests can drive callbacks the way the engine would.
type fakeNative struct {
	mu        sync.Mutex
	segs      []rawSegment
	visible   int
	code      int
	script    func(f *fakeNative, box *callbackBox)
	frees     int
	lastBox   *callbackBox
	lastParam fullParams
	calls     int
	quietFree bool
}

func (f *fakeNative) segmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

func (f *fakeNative) segment(i int) rawSegment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.segs[i]
}

func (f *fakeNative) setVisible(n int) {
	f.mu.Lock()
	f.visible = n
	f.mu.Unlock()
}

func (f *fakeNative) full(p fullParams, _ []float32, box *callbackBox) int {
	f.mu.Lock()
	f.calls++
	f.lastBox = box
	f.lastParam = p
	f.visible = 0
	f.mu.Unlock()

	if f.script != nil {
		f.script(f, box)
	}
	if f.code == 0 {
		f.setVisible(len(f.segs))
	}
	return f.code
}

func (f *fakeNative) free() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frees++
	f.quietFree = quiet.Suppressed()
}

func (f *fakeNative) freeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frees
}

func loaderFor(native *fakeNative) loaderFunc {
	return func(string, contextParams) (nativeContext, error) {
		return native, nil
	}
}

func failingLoader(native *fakeNative) loaderFunc {
	return func(string, contextParams) (nativeContext, error) {
		if native != nil {
			return native, errors.New("tensor shape mismatch")
		}
		return nil, errors.New("tensor shape mismatch")
	}
}

func writeModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-test.bin")
	require.NoError(t, os.WriteFile(path, []byte("not really a model"), 0o644))
	return path
}

func openFake(t *testing.T, native *fakeNative) *Context {
	t.Helper()
	c, err := open(loaderFor(native), writeModelFile(t), ContextOptions{Verbose: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func segs(texts ...string) []rawSegment {
	out := make([]rawSegment, 0, len(texts))
	for i, text := range texts {
		out = append(out, rawSegment{t0: int64(i * 150), t1: int64((i + 1) * 150), text: text})
	}
	return out
}
