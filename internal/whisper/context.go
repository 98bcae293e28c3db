package whisper

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/whispercppkit/whispercppkit/internal/quiet"
	"go.uber.org/zap"
)

// Context owns one loaded whisper.cpp model.
type Context struct {
	mu        sync.Mutex
	native    nativeContext
	modelPath string
	verbose   bool
	logger    *zap.Logger
	cleanup   runtime.Cleanup
}

type nativeRelease struct {
	native  nativeContext
	verbose bool
}

// Open loads the model at modelPath. Failures are reported as *InitError.
func Open(modelPath string, opts ContextOptions) (*Context, error) {
	return open(loadNative, modelPath, opts)
}

func open(load loaderFunc, modelPath string, opts ContextOptions) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(modelPath) == "" {
		return nil, &InitError{ModelPath: modelPath, Err: errors.New("model path is empty")}
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, &InitError{ModelPath: modelPath, Err: err}
	}
	if info.IsDir() {
		return nil, &InitError{ModelPath: modelPath, Err: fmt.Errorf("%s is a directory", modelPath)}
	}

	params := contextParams{
		useGPU:    opts.UseGPU,
		flashAttn: opts.FlashAttention,
		gpuDevice: opts.GPUDevice,
	}

	var native nativeContext
	quiet.Run(opts.Verbose, func() {
		native, err = load(modelPath, params)
		if err != nil && native != nil {
			native.free()
			native = nil
		}
	})
	if err == nil && native == nil {
		err = errNativeInit
	}
	if err != nil {
		return nil, &InitError{ModelPath: modelPath, Err: err}
	}

	c := &Context{
		native:    native,
		modelPath: modelPath,
		verbose:   opts.Verbose,
		logger:    logger,
	}
	c.cleanup = runtime.AddCleanup(c, releaseNative, nativeRelease{native: native, verbose: opts.Verbose})

	logger.Debug("whisper context loaded",
		zap.String("model", modelPath),
		zap.Bool("gpu", opts.UseGPU),
		zap.Bool("flash_attn", opts.FlashAttention),
		zap.Int("gpu_device", opts.GPUDevice),
	)
	return c, nil
}

// releaseNative frees a context whose owner was dropped without Close.
func releaseNative(r nativeRelease) {
	quiet.Run(r.verbose, r.native.free)
}

// ModelPath returns the path the context was loaded from.
func (c *Context) ModelPath() string {
	return c.modelPath
}

// Close frees the native context. It waits for an in-flight Transcribe and is safe
// to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.native == nil {
		return nil
	}
	c.cleanup.Stop()

	native := c.native
	c.native = nil
	quiet.Run(c.verbose, native.free)

	c.logger.Debug("whisper context freed", zap.String("model", c.modelPath))
	return nil
}
