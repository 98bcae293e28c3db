package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/whispercppkit/whispercppkit/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, newAppState(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// fakeEngine replays canned segments through the handlers like the engine would.
type fakeEngine struct {
	mu       sync.Mutex
	segments func(samples []float32) []whisper.Segment
	err      error
	calls    int
	lastOpts whisper.Options
	closed   bool
}

func (f *fakeEngine) Transcribe(samples []float32, opts whisper.Options) ([]whisper.Segment, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	f.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(50)
	}
	if f.err != nil {
		return nil, f.err
	}

	segs := f.segments(samples)
	if opts.OnSegment != nil {
		for _, s := range segs {
			opts.OnSegment(s)
		}
	}
	return segs, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func helloWorld([]float32) []whisper.Segment {
	return []whisper.Segment{
		{Index: 0, StartTime: 0, EndTime: 1.5, Text: " hello"},
		{Index: 1, StartTime: 1.5, EndTime: 3, Text: " world"},
	}
}

type harness struct {
	app     *appState
	dir     string
	opened  atomic.Int32
	mu      sync.Mutex
	engines []*fakeEngine
	// configure runs on every engine before it is handed out.
	configure func(*fakeEngine)
	samples   func(path string) []float32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{dir: t.TempDir()}
	h.samples = func(string) []float32 { return tone(16000, 0.4) }

	app := newAppState()
	app.ensureModelFn = func(context.Context) (modelRef, error) {
		return modelRef{id: "tiny.en", path: "/models/ggml-tiny.en.bin"}, nil
	}
	app.decodeFn = func(_ context.Context, path string) ([]float32, error) {
		return h.samples(path), nil
	}
	app.openFn = func(string, whisper.ContextOptions) (engine, error) {
		h.opened.Add(1)
		e := &fakeEngine{segments: helloWorld}
		if h.configure != nil {
			h.configure(e)
		}
		h.mu.Lock()
		h.engines = append(h.engines, e)
		h.mu.Unlock()
		return e, nil
	}
	h.app = app
	return h
}

func (h *harness) audioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	return path
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runApp(t, h.app, append(args, "--model-dir", filepath.Join(h.dir, "models"), "--no-progress"))
}

func (h *harness) onlyEngine(t *testing.T) *fakeEngine {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.engines, 1)
	return h.engines[0]
}

func tone(n int, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
