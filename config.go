package lgptune

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
)

// Config holds everything a search session needs.
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.NTrials = 20
//	cfg.NThreads = 8
//	cfg.Storage = StorageConfig{Kind: StorageSQLite, DSN: "studies.db"}
//
// Note:
// - Total trials per session = NTrials * NThreads. Threads multiply the
// sampled budget rather than partitioning it.
type Config struct {
	// NTrials is the number of trials each worker runs.
	NTrials int `toml:"n_trials"`

	// NThreads is the worker pool size.
	NThreads int `toml:"n_threads"`

	// MedianTrials is the number of evaluator runs per trial.
	MedianTrials int `toml:"median_trials"`

	// EvaluatorPath is the evaluator executable.
	EvaluatorPath string `toml:"evaluator"`

	// EvaluatorTimeout bounds one evaluator run when positive. Zero, the
	// default, applies no timeout.
	EvaluatorTimeout time.Duration `toml:"evaluator_timeout"`

	// ConfigsDir holds one <name>/default.toml per recognized environment.
	ConfigsDir string `toml:"configs_dir"`

	// ResultsDir receives the best-parameter artifacts.
	ResultsDir string `toml:"results_dir"`

	// WriteOptimal enables optimal.toml generation after a complete session.
	WriteOptimal bool `toml:"write_optimal"`

	Storage    StorageConfig  `toml:"storage"`
	Thresholds ThresholdTable `toml:"thresholds"`
	Sampler    SamplerConfig  `toml:"sampler"`

	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger `toml:"-"`

	// Meter creates the session instruments. Defaults to the global
	// MeterProvider.
	Meter metric.Meter `toml:"-"`

	// ProgressChan receives an update after every trial. Updates are
	// dropped when the channel is full. If nil, no updates are sent.
	ProgressChan chan<- ProgressUpdate `toml:"-"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	configsDir := os.Getenv(ConfigsDirEnv)
	if configsDir == "" {
		configsDir = "configs"
	}

	return Config{
		NTrials:       40,
		NThreads:      4,
		MedianTrials:  10,
		EvaluatorPath: "lgp",
		ConfigsDir:    configsDir,
		ResultsDir:    "outputs/parameters",
		WriteOptimal:  true,
		Storage:       StorageConfig{Kind: StorageMemory},
		Thresholds:    DefaultThresholds(),
		Sampler:       DefaultSamplerConfig(),
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are an
// error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalidConfig, path, undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.NTrials < 1:
		return fmt.Errorf("%w: n_trials must be at least 1, got %d", ErrInvalidConfig, c.NTrials)
	case c.NThreads < 1:
		return fmt.Errorf("%w: n_threads must be at least 1, got %d", ErrInvalidConfig, c.NThreads)
	case c.MedianTrials < 1:
		return fmt.Errorf("%w: median_trials must be at least 1, got %d", ErrInvalidConfig, c.MedianTrials)
	case c.EvaluatorTimeout < 0:
		return fmt.Errorf("%w: evaluator_timeout must not be negative", ErrInvalidConfig)
	case c.ResultsDir == "":
		return fmt.Errorf("%w: results_dir is required", ErrInvalidConfig)
	}

	return c.Sampler.Validate()
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return slog.Default()
}
