package whisper

import (
	"runtime"

	"go.uber.org/zap"
)

// ticksToSeconds converts the engine's centisecond timestamps.
const ticksToSeconds = 0.01

// Segment is one finalized span of transcribed text. Times are in seconds.
type Segment struct {
	Index     int     `json:"index" yaml:"index"`
	StartTime float64 `json:"startTime" yaml:"startTime"`
	EndTime   float64 `json:"endTime" yaml:"endTime"`
	Text      string  `json:"text" yaml:"text"`
}

// Options configures one Transcribe call. Both handlers may be called from a
// thread owned by the engine.
type Options struct {
	// Language is an ISO code such as "en". Empty keeps the engine default and
	// "auto" asks the engine to detect the language.
	Language  string
	Translate bool
	// Threads <= 0 selects DefaultThreads.
	Threads int
	Verbose bool

	// OnProgress receives engine progress, nominally 0..100. Values may repeat,
	// skip or arrive out of order.
	OnProgress func(percent int)
	// OnSegment receives each finalized segment exactly once, in index order.
	OnSegment func(Segment)
}

// DefaultThreads leaves one core for the caller.
func DefaultThreads() int {
	return max(1, runtime.NumCPU()-1)
}

func (o Options) threads() int {
	if o.Threads <= 0 {
		return DefaultThreads()
	}
	return o.Threads
}

// ContextOptions configures model loading.
type ContextOptions struct {
	UseGPU         bool
	FlashAttention bool
	GPUDevice      int
	// Verbose leaves the engine's own stderr diagnostics visible during load and
	// teardown.
	Verbose bool
	Logger  *zap.Logger
}

// DefaultContextOptions enables the GPU and flash attention on device 0.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		UseGPU:         true,
		FlashAttention: true,
	}
}
