package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/whispercppkit/whispercppkit/internal/audio"
	"github.com/whispercppkit/whispercppkit/internal/config"
	"github.com/whispercppkit/whispercppkit/internal/logging"
	"github.com/whispercppkit/whispercppkit/internal/models"
	"github.com/whispercppkit/whispercppkit/internal/platform"
	"github.com/whispercppkit/whispercppkit/internal/version"
	"github.com/whispercppkit/whispercppkit/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// UsageError marks a failure caused by how the command was invoked.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// engine is the slice of *whisper.Context the commands use.
type engine interface {
	Transcribe(samples []float32, opts whisper.Options) ([]whisper.Segment, error)
	Close() error
}

type modelRef struct {
	id   string
	path string
}

type appState struct {
	configFile     string
	audio          string
	stream         bool
	overwriteModel bool

	cfg    config.Config
	logger *zap.Logger

	// modelBaseURL overrides the Hugging Face host.
	modelBaseURL string

	openFn        func(modelPath string, opts whisper.ContextOptions) (engine, error)
	decodeFn      func(ctx context.Context, path string) ([]float32, error)
	ensureModelFn func(ctx context.Context) (modelRef, error)
}

func newAppState() *appState {
	app := &appState{}
	app.openFn = openWhisper
	app.decodeFn = app.decodeAudio
	app.ensureModelFn = app.ensureModel
	return app
}

func openWhisper(modelPath string, opts whisper.ContextOptions) (engine, error) {
	return whisper.Open(modelPath, opts)
}

// NewRootCmd builds the whispercppkit command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whispercppkit",
		Short: "Offline speech-to-text with whisper.cpp",
		Long: "Transcribe audio files locally with whisper.cpp models.\n\n" +
			"Flag style: whispercppkit --model base.en --audio talk.m4a",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           version.Current(whisper.NativeAvailable()).Version,
		PersistentPreRunE: app.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(app.audio) == "" {
				return usageErrorf("missing --audio; run 'whispercppkit transcribe <audio-file>' or 'whispercppkit models'")
			}
			return app.runTranscribe(cmd, []string{app.audio})
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	cmd.SetGlobalNormalizationFunc(config.NormalizeFlagName)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	bindGlobalFlags(cmd.PersistentFlags(), app)
	bindTranscribeFlags(cmd.Flags(), app)

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(fs *pflag.FlagSet, app *appState) {
	fs.StringVar(&app.configFile, "config", "", "Config file (default: per-user config.yaml when present)")
	fs.Bool("verbose", false, "Enable debug logs and whisper.cpp diagnostics")
	fs.Bool("log-json", false, "Emit logs as JSON")
	fs.Bool("no-progress", false, "Disable progress indicators")
	fs.String("model", models.DefaultModel, "Model id (see 'models list') or model file path")
	fs.String("model-dir", "", "Directory where models are stored")
	fs.Bool("auto-download", true, "Download missing models automatically")
	fs.Bool("gpu", true, "Use the GPU when whisper.cpp was built with one")
	fs.Bool("flash-attn", true, "Enable flash attention")
	fs.Int("gpu-device", 0, "GPU device index")
}

func bindTranscribeFlags(fs *pflag.FlagSet, app *appState) {
	fs.StringVar(&app.audio, "audio", "", "Audio file to transcribe")
	fs.String("language", "auto", "Spoken language code (auto|en|de|...); --lang is accepted too")
	fs.Int("threads", 0, "Inference threads (0 = one less than the CPU count)")
	fs.Bool("translate", false, "Translate the transcript to English")
	fs.String("format", "text", "Output format: text|json|yaml")
	fs.Bool("silence-gate", true, "Skip inference for near-silent audio")
	fs.Float64("silence-threshold-dbfs", -65, "Silence gate threshold in dBFS")
	fs.BoolVar(&app.stream, "stream", false, "Print segments as they are produced (NDJSON with --format json)")
	fs.BoolVar(&app.overwriteModel, "overwrite-model", false, "Download the model again even if present")
}

func (a *appState) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoadOptions{File: a.configFile, Flags: cmd.Flags()})
	if err != nil {
		return &UsageError{Err: err}
	}
	cfg.Language = sanitizeLanguage(cfg.Language)
	if err := cfg.Validate(); err != nil {
		return &UsageError{Err: err}
	}

	logger, err := logging.New(logging.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	if cfg.File != "" {
		logger.Debug("loaded config", zap.String("file", cfg.File))
	}
	return nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.cfg.NoProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) store() (*models.Store, error) {
	dir, err := platform.ResolveModelDir(a.cfg.ModelDir)
	if err != nil {
		return nil, err
	}
	return &models.Store{
		Dir:        dir,
		BaseURL:    a.modelBaseURL,
		Logger:     logging.Named(a.log(), "models"),
		NoProgress: a.cfg.NoProgress,
	}, nil
}

func (a *appState) contextOptions() whisper.ContextOptions {
	return whisper.ContextOptions{
		UseGPU:         a.cfg.GPU,
		FlashAttention: a.cfg.FlashAttn,
		GPUDevice:      a.cfg.GPUDevice,
		Verbose:        a.cfg.Verbose,
		Logger:         logging.Named(a.log(), "whisper"),
	}
}

func (a *appState) decodeAudio(ctx context.Context, path string) ([]float32, error) {
	d := &audio.Decoder{Logger: logging.Named(a.log(), "audio")}
	return d.DecodeFile(ctx, path)
}

func (a *appState) ensureModel(ctx context.Context) (modelRef, error) {
	store, err := a.store()
	if err != nil {
		return modelRef{}, err
	}

	resolved, err := store.Resolve(a.cfg.Model)
	if err != nil {
		return modelRef{}, err
	}
	if resolved.IsCustomPath {
		return modelRef{id: a.cfg.Model, path: resolved.Path}, nil
	}
	if !resolved.NeedsDownload && !a.overwriteModel {
		return modelRef{id: resolved.Model.ID, path: resolved.Path}, nil
	}
	if resolved.NeedsDownload && !a.cfg.AutoDownload {
		return modelRef{}, fmt.Errorf("model %q is missing at %s; run `whispercppkit models pull %s` or use --auto-download=true",
			resolved.Model.ID, resolved.Path, resolved.Model.ID)
	}

	path, err := store.Ensure(ctx, resolved.Model, a.overwriteModel)
	if err != nil {
		return modelRef{}, err
	}
	return modelRef{id: resolved.Model.ID, path: path}, nil
}

func writeLine(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}

var errNothingToTranscribe = errors.New("no audio files given")
