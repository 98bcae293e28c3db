package whisper

// The methods below are the whole surface this package needs from the engine.

type contextParams struct {
	useGPU    bool
	flashAttn bool
	gpuDevice int
}

type fullParams struct {
	language  string
	translate bool
	threads   int
}

// rawSegment holds engine timestamps in centiseconds.
type rawSegment struct {
	t0   int64
	t1   int64
	text string
}

type segmentSource interface {
	segmentCount() int
	segment(i int) rawSegment
}

type nativeContext interface {
	segmentSource
	// full runs inference and returns the engine status. A non-nil box receives
	// progress and new-segment notifications until full returns.
	full(p fullParams, samples []float32, box *callbackBox) int
	// free releases the engine context. Calling it twice is harmless.
	free()
}

// loaderFunc loads a model. Implementations must not hold native resources when
// they return an error.
type loaderFunc func(modelPath string, p contextParams) (nativeContext, error)

func makeSegment(index int, raw rawSegment) Segment {
	return Segment{
		Index:     index,
		StartTime: float64(max(0, raw.t0)) * ticksToSeconds,
		EndTime:   float64(max(0, raw.t1)) * ticksToSeconds,
		Text:      raw.text,
	}
}

func collectSegments(src segmentSource) []Segment {
	n := src.segmentCount()
	out := make([]Segment, 0, max(0, n))
	for i := 0; i < n; i++ {
		out = append(out, makeSegment(i, src.segment(i)))
	}
	return out
}
