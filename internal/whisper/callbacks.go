package whisper

import "sync"

// callbackBox is the call-scoped state reachable from engine callbacks. It lives for
// exactly one inference call; release makes every later notification a no-op.
//
// The engine does not document which thread delivers callbacks, so the watermark
// and handler calls are serialized by mu.
type callbackBox struct {
	mu          sync.Mutex
	src         segmentSource
	onProgress  func(int)
	onSegment   func(Segment)
	lastEmitted int
	released    bool
	panicVal    any
}

func newCallbackBox(src segmentSource, onProgress func(int), onSegment func(Segment)) *callbackBox {
	return &callbackBox{
		src:         src,
		onProgress:  onProgress,
		onSegment:   onSegment,
		lastEmitted: -1,
	}
}

func (b *callbackBox) progress(percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released || b.onProgress == nil {
		return
	}
	b.guard(func() { b.onProgress(percent) })
}

// newSegments delivers segments the engine reports as finalized. nNew counts may
// overlap between calls; indices at or below the watermark are skipped, and an
// undercounted nNew never leaves a hole behind the watermark.
func (b *callbackBox) newSegments(nNew int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released || b.onSegment == nil || nNew <= 0 {
		return
	}

	total := b.src.segmentCount()
	if total <= 0 {
		return
	}

	start := min(max(0, total-nNew), b.lastEmitted+1)
	for i := start; i < total && !b.released; i++ {
		if i <= b.lastEmitted {
			continue
		}
		seg := makeSegment(i, b.src.segment(i))
		b.guard(func() { b.onSegment(seg) })
		b.lastEmitted = i
	}
}

// guard runs a caller handler. A panic must not unwind through engine frames, so it
// is parked and re-raised by the transcribing goroutine; the box stops delivering.
func (b *callbackBox) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.panicVal = r
			b.released = true
		}
	}()
	fn()
}

// release invalidates the box and returns any handler panic. Once it returns no
// handler runs again.
func (b *callbackBox) release() any {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.released = true
	b.src = nil
	return b.panicVal
}

func (b *callbackBox) isReleased() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
