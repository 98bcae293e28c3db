// Package config layers defaults, an optional YAML file, WHISPERCPPKIT_* environment
// variables and command-line flags into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/whispercppkit/whispercppkit/internal/platform"
)

// EnvPrefix is prepended to every environment override, e.g. WHISPERCPPKIT_MODEL_DIR.
const EnvPrefix = "WHISPERCPPKIT"

// Formats lists the accepted values of the format key.
var Formats = []string{"text", "json", "yaml"}

type Config struct {
	Model                string  `mapstructure:"model"`
	ModelDir             string  `mapstructure:"model-dir"`
	Language             string  `mapstructure:"language"`
	Threads              int     `mapstructure:"threads"`
	Translate            bool    `mapstructure:"translate"`
	GPU                  bool    `mapstructure:"gpu"`
	FlashAttn            bool    `mapstructure:"flash-attn"`
	GPUDevice            int     `mapstructure:"gpu-device"`
	AutoDownload         bool    `mapstructure:"auto-download"`
	SilenceGate          bool    `mapstructure:"silence-gate"`
	SilenceThresholdDBFS float64 `mapstructure:"silence-threshold-dbfs"`
	Format               string  `mapstructure:"format"`
	Verbose              bool    `mapstructure:"verbose"`
	LogJSON              bool    `mapstructure:"log-json"`
	NoProgress           bool    `mapstructure:"no-progress"`
	Jobs                 int     `mapstructure:"jobs"`

	// File is the config file that was read, empty when none was.
	File string `mapstructure:"-"`
}

// LoadOptions points Load at its inputs.
type LoadOptions struct {
	// File is an explicit config path. It must exist.
	File string
	// DefaultFile is read only when it exists. Empty uses the per-user location.
	DefaultFile string
	Flags       *pflag.FlagSet
}

func defaults(v *viper.Viper) {
	v.SetDefault("model", "small")
	v.SetDefault("model-dir", "")
	v.SetDefault("language", "auto")
	v.SetDefault("threads", 0)
	v.SetDefault("translate", false)
	v.SetDefault("gpu", true)
	v.SetDefault("flash-attn", true)
	v.SetDefault("gpu-device", 0)
	v.SetDefault("auto-download", true)
	v.SetDefault("silence-gate", true)
	v.SetDefault("silence-threshold-dbfs", -65.0)
	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("log-json", false)
	v.SetDefault("no-progress", false)
	v.SetDefault("jobs", 1)
}

// Load resolves the configuration. Flags only override when they were set
// explicitly.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	file, err := configFile(opts)
	if err != nil {
		return Config{}, err
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	cfg.Language = strings.TrimSpace(cfg.Language)
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}

	return cfg, nil
}

func configFile(opts LoadOptions) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return opts.File, nil
	}

	candidate := opts.DefaultFile
	if candidate == "" {
		resolved, err := platform.ResolveConfigFile()
		if err != nil {
			// No home directory: run on defaults and environment only.
			return "", nil
		}
		candidate = resolved
	}

	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config file: %w", err)
	}
	return candidate, nil
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must be >= 0, got %d", c.Threads))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be >= 1, got %d", c.Jobs))
	}
	if c.GPUDevice < 0 {
		errs = append(errs, fmt.Errorf("gpu-device must be >= 0, got %d", c.GPUDevice))
	}
	if !slices.Contains(Formats, c.Format) {
		errs = append(errs, fmt.Errorf("format must be one of %s, got %q", strings.Join(Formats, ", "), c.Format))
	}
	if c.SilenceThresholdDBFS > 0 {
		errs = append(errs, fmt.Errorf("silence-threshold-dbfs must be <= 0, got %.1f", c.SilenceThresholdDBFS))
	}
	return errors.Join(errs...)
}

// NormalizeFlagName lets --lang stand in for --language.
func NormalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "lang" {
		name = "language"
	}
	return pflag.NormalizedName(name)
}
