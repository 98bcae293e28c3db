package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/whispercppkit/whispercppkit/internal/audio"
	"github.com/whispercppkit/whispercppkit/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe [audio-file...]",
		Short: "Transcribe audio files",
		Long: "Transcribe one or more audio files. WAV is decoded natively; other formats need ffmpeg.\n" +
			"With --jobs N, N workers each load their own copy of the model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if strings.TrimSpace(app.audio) != "" {
				files = append([]string{app.audio}, files...)
			}
			return app.runTranscribe(cmd, files)
		},
	}

	bindTranscribeFlags(cmd.Flags(), app)
	cmd.Flags().Int("jobs", 1, "Files transcribed in parallel, each worker with its own model instance")
	return cmd
}

func (a *appState) runTranscribe(cmd *cobra.Command, files []string) error {
	if len(files) == 0 {
		return &UsageError{Err: errNothingToTranscribe}
	}
	if a.stream && len(files) > 1 && a.cfg.Jobs > 1 {
		return usageErrorf("--stream needs --jobs 1 when transcribing several files")
	}

	for i, f := range files {
		files[i] = filepath.Clean(f)
		if info, err := os.Stat(files[i]); err != nil {
			return &audio.DecodeError{Reason: fmt.Sprintf("audio file not found: %s", files[i]), Err: err}
		} else if info.IsDir() {
			return &audio.DecodeError{Reason: fmt.Sprintf("%s is a directory", files[i])}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	model, err := a.ensureModelFn(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var stream *segmentStream
	if a.stream {
		stream = newSegmentStream(out, a.cfg.Format)
	}

	results, err := a.transcribeAll(ctx, model, files, stream)
	if err != nil {
		return err
	}
	if stream != nil {
		return stream.close()
	}
	return writeResults(out, a.cfg.Format, results)
}

// transcribeAll fans files out to workers. Each worker owns one engine handle, so
// no handle is ever shared between goroutines. Load and free redirect fd 2 for the
// whole process, so engines are loaded before any worker starts and released after
// all of them stop.
func (a *appState) transcribeAll(ctx context.Context, model modelRef, files []string, stream *segmentStream) ([]transcriptionResult, error) {
	workers := max(1, min(a.cfg.Jobs, len(files)))
	results := make([]transcriptionResult, len(files))

	engines, err := a.openEngines(model, workers)
	if err != nil {
		return nil, err
	}
	defer a.closeEngines(engines)

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan int)

	g.Go(func() error {
		defer close(queue)
		for i := range files {
			select {
			case queue <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, eng := range engines {
		g.Go(func() error {
			for i := range queue {
				res, err := a.transcribeOne(gctx, eng, model, files[i], workers == 1, stream)
				if err != nil {
					if len(files) > 1 {
						return fmt.Errorf("%s: %w", files[i], err)
					}
					return err
				}
				results[i] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// openEngines loads n engines one after another. On failure the ones already
// loaded are released.
func (a *appState) openEngines(model modelRef, n int) ([]engine, error) {
	engines := make([]engine, 0, n)
	for range n {
		eng, err := a.openFn(model.path, a.contextOptions())
		if err != nil {
			a.closeEngines(engines)
			return nil, err
		}
		engines = append(engines, eng)
	}
	return engines, nil
}

func (a *appState) closeEngines(engines []engine) {
	for _, eng := range engines {
		if err := eng.Close(); err != nil {
			a.log().Warn("failed to release model", zap.Error(err))
		}
	}
}

func (a *appState) transcribeOne(ctx context.Context, eng engine, model modelRef, path string, interactive bool, stream *segmentStream) (transcriptionResult, error) {
	showProgress := interactive && a.progressEnabled()

	stopSpinner := startSpinner(showProgress, "Decoding")
	samples, err := a.decodeFn(ctx, path)
	stopSpinner()
	if err != nil {
		return transcriptionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return transcriptionResult{}, err
	}

	res := transcriptionResult{
		Audio:              path,
		Language:           a.cfg.Language,
		Model:              model.id,
		Threads:            effectiveThreads(a.cfg.Threads),
		TranslateToEnglish: a.cfg.Translate,
	}

	if seg, silent := a.silenceGate(path, samples); silent {
		res.Segments = []whisper.Segment{seg}
		if stream != nil {
			stream.write(seg)
		}
		return res, nil
	}

	progress := newTranscriptionProgress(showProgress, "Transcribing")
	opts := whisper.Options{
		Language:  a.cfg.Language,
		Translate: a.cfg.Translate,
		Threads:   a.cfg.Threads,
		Verbose:   a.cfg.Verbose,
	}
	if progress.enabled() {
		opts.OnProgress = progress.update
	}
	if stream != nil {
		opts.OnSegment = func(seg whisper.Segment) {
			progress.breakLine()
			stream.write(seg)
		}
	}

	a.log().Info("transcribing",
		zap.String("audio", path),
		zap.String("model", model.id),
		zap.String("language", a.cfg.Language),
		zap.Int("threads", res.Threads),
	)
	started := time.Now()
	segments, err := eng.Transcribe(samples, opts)
	progress.finish()
	if err != nil {
		var infErr *whisper.InferenceError
		if errors.As(err, &infErr) {
			a.log().Warn("transcription failed", zap.Int("code", infErr.Code), zap.Duration("elapsed", time.Since(started)))
		}
		return transcriptionResult{}, err
	}
	a.log().Info("transcription finished", zap.Int("segments", len(segments)), zap.Duration("elapsed", time.Since(started)))

	if isBlankTranscript(joinSegments(segments)) {
		a.log().Warn(noSpeechHint(path))
	}

	res.Segments = segments
	if res.Segments == nil {
		res.Segments = []whisper.Segment{}
	}
	return res, nil
}

// silenceGate reports a blank segment when the decoded audio is too quiet to hold
// speech.
func (a *appState) silenceGate(path string, samples []float32) (whisper.Segment, bool) {
	if !a.cfg.SilenceGate {
		return whisper.Segment{}, false
	}

	silent, metrics := audio.IsSilent(samples, a.cfg.SilenceThresholdDBFS)
	if !silent {
		return whisper.Segment{}, false
	}

	a.log().Info("audio considered silent; skipping transcription",
		zap.String("audio", path),
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", a.cfg.SilenceThresholdDBFS),
	)
	return whisper.Segment{
		Index:   0,
		EndTime: float64(len(samples)) / audio.SampleRate,
		Text:    blankAudioToken,
	}, true
}

func effectiveThreads(n int) int {
	if n <= 0 {
		return whisper.DefaultThreads()
	}
	return n
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
