package whisper

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transcribe runs inference over mono 16 kHz samples in [-1, 1] and returns every
// finalized segment in index order. The result does not depend on whether
// OnSegment was set. Calls on one Context are serialized.
//
// A non-zero engine status yields *InferenceError and no segments.
func (c *Context) Transcribe(samples []float32, opts Options) ([]Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.native == nil {
		return nil, ErrClosed
	}
	if len(samples) == 0 {
		return []Segment{}, nil
	}

	params := fullParams{
		language:  strings.TrimSpace(opts.Language),
		translate: opts.Translate,
		threads:   opts.threads(),
	}

	started := time.Now()
	code := c.run(params, samples, opts)
	if code != 0 {
		c.logger.Debug("whisper inference failed", zap.Int("code", code), zap.Duration("elapsed", time.Since(started)))
		return nil, &InferenceError{Code: code}
	}

	segments := collectSegments(c.native)
	c.logger.Debug("whisper inference finished",
		zap.Int("samples", len(samples)),
		zap.Int("threads", params.threads),
		zap.String("language", params.language),
		zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return segments, nil
}

func (c *Context) run(p fullParams, samples []float32, opts Options) int {
	if opts.OnProgress == nil && opts.OnSegment == nil {
		return c.native.full(p, samples, nil)
	}

	box := newCallbackBox(c.native, opts.OnProgress, opts.OnSegment)
	var panicVal any
	code := func() int {
		defer func() { panicVal = box.release() }()
		return c.native.full(p, samples, box)
	}()
	if panicVal != nil {
		panic(panicVal)
	}
	return code
}
