package whisper

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engineScript mimics the engine finalizing segments in batches.
func engineScript(batches ...int) func(*fakeNative, *callbackBox) {
	return func(f *fakeNative, box *callbackBox) {
		if box == nil {
			return
		}
		total := 0
		for _, n := range batches {
			total += n
			f.setVisible(total)
			box.progress(total * 100 / len(f.segs))
			box.newSegments(n)
		}
	}
}

func TestTranscribeCollectsSegments(t *testing.T) {
	t.Parallel()

	native := &fakeNative{segs: segs(" hello", " world")}
	c := openFake(t, native)

	got, err := c.Transcribe(make([]float32, 16000), Options{Threads: 4, Language: "en"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].Index)
	require.Equal(t, " hello", got[0].Text)
	require.InDelta(t, 1.5, got[0].EndTime, 1e-9)
	require.Equal(t, 1, got[1].Index)
	require.Equal(t, " world", got[1].Text)
	require.InDelta(t, 1.5, got[1].StartTime, 1e-9)
	require.InDelta(t, 3.0, got[1].EndTime, 1e-9)
	require.Nil(t, native.lastBox)
}

func TestTranscribeSilenceWithoutSegments(t *testing.T) {
	t.Parallel()

	c := openFake(t, &fakeNative{})
	got, err := c.Transcribe(make([]float32, 16000), Options{Threads: 4, Language: "en"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTranscribeEmptySamplesSkipsEngine(t *testing.T) {
	t.Parallel()

	native := &fakeNative{segs: segs("x")}
	c := openFake(t, native)

	got, err := c.Transcribe(nil, Options{})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, native.calls)
}

func TestTranscribeResultIgnoresHandler(t *testing.T) {
	t.Parallel()

	texts := []string{" one", " two", " three", " four", " five"}

	plain := &fakeNative{segs: segs(texts...), script: engineScript(2, 3)}
	want, err := openFake(t, plain).Transcribe(make([]float32, 32000), Options{})
	require.NoError(t, err)

	streamed := &fakeNative{segs: segs(texts...), script: engineScript(2, 3)}
	var delivered []Segment
	got, err := openFake(t, streamed).Transcribe(make([]float32, 32000), Options{
		OnSegment: func(s Segment) { delivered = append(delivered, s) },
	})
	require.NoError(t, err)

	require.Equal(t, want, got)
	require.Equal(t, want, delivered)
}

func TestTranscribeStreamsOverlappingBatches(t *testing.T) {
	t.Parallel()

	native := &fakeNative{
		segs: segs("a", "b", "c", "d", "e"),
		script: func(f *fakeNative, box *callbackBox) {
			f.setVisible(2)
			box.newSegments(2)
			f.setVisible(5)
			box.newSegments(3)
			box.newSegments(3)
		},
	}
	c := openFake(t, native)

	var indices []int
	_, err := c.Transcribe(make([]float32, 100), Options{
		OnSegment: func(s Segment) { indices = append(indices, s.Index) },
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, indices)
}

func TestTranscribeReportsProgress(t *testing.T) {
	t.Parallel()

	native := &fakeNative{segs: segs("a", "b", "c", "d"), script: engineScript(1, 1, 2)}
	c := openFake(t, native)

	var progress []int
	_, err := c.Transcribe(make([]float32, 100), Options{
		OnProgress: func(p int) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	require.Equal(t, []int{25, 50, 100}, progress)
}

func TestTranscribeInferenceFailure(t *testing.T) {
	t.Parallel()

	native := &fakeNative{segs: segs("partial"), code: 7, script: engineScript(1)}
	c := openFake(t, native)

	var delivered int
	got, err := c.Transcribe(make([]float32, 100), Options{
		OnSegment: func(Segment) { delivered++ },
	})

	var infErr *InferenceError
	require.ErrorAs(t, err, &infErr)
	require.Equal(t, 7, infErr.Code)
	require.Equal(t, "whisper: inference failed with code 7", err.Error())
	require.Empty(t, got)
	require.Equal(t, 1, delivered)
	require.True(t, native.lastBox.isReleased())
}

func TestTranscribeReleasesBox(t *testing.T) {
	t.Parallel()

	var late *callbackBox
	native := &fakeNative{
		segs: segs("a", "b"),
		script: func(_ *fakeNative, box *callbackBox) {
			late = box
		},
	}
	c := openFake(t, native)

	var after atomic.Int32
	var done atomic.Bool
	_, err := c.Transcribe(make([]float32, 100), Options{
		OnProgress: func(int) {
			if done.Load() {
				after.Add(1)
			}
		},
		OnSegment: func(Segment) {
			if done.Load() {
				after.Add(1)
			}
		},
	})
	require.NoError(t, err)
	done.Store(true)

	require.True(t, late.isReleased())
	late.progress(90)
	late.newSegments(2)
	require.Zero(t, after.Load())
}

func TestTranscribeThreadsAndLanguage(t *testing.T) {
	t.Parallel()

	native := &fakeNative{}
	c := openFake(t, native)

	_, err := c.Transcribe(make([]float32, 10), Options{Threads: 3, Language: " de ", Translate: true})
	require.NoError(t, err)
	require.Equal(t, fullParams{language: "de", translate: true, threads: 3}, native.lastParam)

	for _, threads := range []int{0, -2} {
		_, err = c.Transcribe(make([]float32, 10), Options{Threads: threads})
		require.NoError(t, err)
		require.Equal(t, DefaultThreads(), native.lastParam.threads)
		require.Empty(t, native.lastParam.language)
	}
	require.GreaterOrEqual(t, DefaultThreads(), 1)
}

func TestTranscribeReraisesHandlerPanic(t *testing.T) {
	t.Parallel()

	native := &fakeNative{segs: segs("a", "b", "c"), script: engineScript(1, 2)}
	c := openFake(t, native)

	calls := 0
	require.PanicsWithValue(t, "bad handler", func() {
		_, _ = c.Transcribe(make([]float32, 10), Options{
			OnSegment: func(Segment) {
				calls++
				panic("bad handler")
			},
		})
	})
	require.Equal(t, 1, calls)
	require.True(t, native.lastBox.isReleased())

	// The context stays usable.
	got, err := c.Transcribe(make([]float32, 10), Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestTranscribeSerializesCalls(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	native := &fakeNative{
		segs: segs("a"),
		script: func(*fakeNative, *callbackBox) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		},
	}
	c := openFake(t, native)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Transcribe(make([]float32, 10), Options{})
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak.Load())
	require.Equal(t, 8, native.calls)
}

func TestCloseWaitsForTranscribe(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	finish := make(chan struct{})
	native := &fakeNative{
		segs: segs("a"),
		script: func(*fakeNative, *callbackBox) {
			close(started)
			<-finish
		},
	}
	c, err := open(loaderFor(native), writeModelFile(t), ContextOptions{Verbose: true})
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := c.Transcribe(make([]float32, 10), Options{})
		result <- err
	}()
	<-started

	closed := make(chan struct{})
	go func() {
		_ = c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while inference was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(finish)
	require.NoError(t, <-result)
	<-closed
	require.Equal(t, 1, native.freeCount())
}
