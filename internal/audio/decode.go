package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

// SampleRate is the rate of every sample slice returned by this package. Output is
// always mono float32 in [-1, 1].
const SampleRate = 16000

// DecodeError reports that an audio source could not be turned into PCM samples.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return "audio decode failed: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errNeedsFFmpeg = errors.New("wav layout not handled natively")

// Decoder converts audio files into 16 kHz mono float32 PCM. Plain PCM WAV files are
// decoded in-process; everything else is piped through ffmpeg.
type Decoder struct {
	// FFmpegPath overrides the ffmpeg executable looked up on PATH.
	FFmpegPath string
	Logger     *zap.Logger
}

// DecodeFile decodes path with a default Decoder.
func DecodeFile(ctx context.Context, path string) ([]float32, error) {
	return (&Decoder{}).DecodeFile(ctx, path)
}

func (d *Decoder) DecodeFile(ctx context.Context, path string) ([]float32, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("audio file not found: %s", path), Err: err}
	}

	var (
		samples []float32
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err = decodeWAV(path)
		if errors.Is(err, errNeedsFFmpeg) {
			logger.Debug("wav needs ffmpeg conversion", zap.String("audio", path), zap.Error(err))
			samples, err = d.decodeFFmpeg(ctx, path)
		}
	} else {
		samples, err = d.decodeFFmpeg(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	if len(samples) == 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("no audio samples decoded from %s", path)}
	}

	logger.Debug("audio decoded", zap.String("audio", path), zap.Int("samples", len(samples)))
	return samples, nil
}

func decodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("open %s", path), Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", errNeedsFFmpeg)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: format tag %d", errNeedsFFmpeg, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("read wav data from %s", path), Err: err}
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("wav header of %s has no channel or rate information", path)}
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	samples, err := normalizePCM(buf.Data, bitDepth)
	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("%s: %v", path, err), Err: err}
	}

	mono := downmix(samples, buf.Format.NumChannels)
	out := resample(mono, buf.Format.SampleRate, SampleRate)
	clamp(out)
	return out, nil
}

func normalizePCM(data []int, bitDepth int) ([]float32, error) {
	out := make([]float32, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = float32(v-128) / 128.0
		}
	case 16, 24, 32:
		scale := float32(math.Exp2(float64(bitDepth - 1)))
		for i, v := range data {
			out[i] = float32(v) / scale
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	return out, nil
}

func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) ([]float32, error) {
	bin := strings.TrimSpace(d.FFmpegPath)
	if bin == "" {
		bin = "ffmpeg"
	}

	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("cannot decode %s without ffmpeg; install ffmpeg or convert the file to WAV (16 kHz mono)", path),
			Err:    err,
		}
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "f32le", "-acodec", "pcm_f32le",
		"-ac", "1", "-ar", fmt.Sprint(SampleRate),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, resolved, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		return nil, &DecodeError{Reason: fmt.Sprintf("ffmpeg could not decode %s: %s", path, reason), Err: err}
	}

	samples := float32FromLE(stdout.Bytes())
	clamp(samples)
	return samples, nil
}

func float32FromLE(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}
