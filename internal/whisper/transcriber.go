package whisper

import (
	"context"

	"github.com/whispercppkit/whispercppkit/internal/audio"
)

// TranscribeFile decodes audioPath, loads modelPath with default context options
// and transcribes the samples. The model is freed before returning.
func TranscribeFile(ctx context.Context, modelPath, audioPath string, opts Options) ([]Segment, error) {
	samples, err := audio.DecodeFile(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	copts := DefaultContextOptions()
	copts.Verbose = opts.Verbose

	wctx, err := Open(modelPath, copts)
	if err != nil {
		return nil, err
	}
	defer wctx.Close()

	return wctx.Transcribe(samples, opts)
}
