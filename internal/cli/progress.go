package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// transcriptionProgress renders engine progress as a percentage bar. Values are
// clamped to 0..100, repeats are dropped and the bar ends at 100 exactly once.
type transcriptionProgress struct {
	mu       sync.Mutex
	render   func(percent int)
	clear    func()
	done     func()
	last     int
	finished bool
}

func newTranscriptionProgress(enabled bool, description string) *transcriptionProgress {
	p := &transcriptionProgress{last: -1}
	if !enabled {
		return p
	}

	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	p.render = func(percent int) { _ = bar.Set(percent) }
	p.clear = func() { _ = bar.Clear() }
	p.done = func() { _ = bar.Finish() }
	return p
}

func (p *transcriptionProgress) enabled() bool {
	return p.render != nil
}

func (p *transcriptionProgress) update(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.render == nil || p.finished {
		return
	}
	percent = min(100, max(0, percent))
	if percent == p.last {
		return
	}
	p.last = percent
	p.render(percent)
}

// breakLine clears the bar so streamed output starts on a clean line. The next
// update redraws it.
func (p *transcriptionProgress) breakLine() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clear != nil && !p.finished && p.last >= 0 {
		p.clear()
	}
}

func (p *transcriptionProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.render == nil || p.finished {
		return
	}
	if p.last < 100 {
		p.last = 100
		p.render(100)
	}
	p.finished = true
	if p.done != nil {
		p.done()
	}
}
