package shopfloor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/policy"
	"github.com/viant/shopfloor/service/processor"
	"github.com/viant/shopfloor/service/scorer"
	"github.com/viant/shopfloor/tracing"
	"gopkg.in/yaml.v3"
)

// Journal drivers
const (
	JournalMemory = "memory"
	JournalSQLite = "sqlite"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML, environment variables or a viper-supported file.
// Zero-valued sections inherit their package defaults in DefaultConfig.
type Config struct {
	Engine    EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Policy    *policy.Policy   `yaml:"policy" mapstructure:"policy"`
	Processor processor.Config `yaml:"processor" mapstructure:"processor"`
	Notifier  NotifierConfig   `yaml:"notifier" mapstructure:"notifier"`
	Journal   JournalConfig    `yaml:"journal" mapstructure:"journal"`
	ReadModel ReadModelConfig  `yaml:"readModel" mapstructure:"read_model"`
	Tracing   tracing.Config   `yaml:"tracing" mapstructure:"tracing"`
	Logging   LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// EngineConfig parameterises validation and scoring
type EngineConfig struct {
	MaxDistance float64        `yaml:"maxDistance" mapstructure:"max_distance"`
	MaxCost     float64        `yaml:"maxCost" mapstructure:"max_cost"`
	Weights     scorer.Weights `yaml:"weights" mapstructure:"weights"`
	Layout      *model.Layout  `yaml:"layout" mapstructure:"layout"`
	// Concurrency bounds parallel pair scoring; 0 scores sequentially
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// PassInterval is how often a periodic allocation pass runs; 0 disables it
	PassInterval time.Duration `yaml:"passInterval" mapstructure:"pass_interval"`
}

// NotifierConfig controls the notification emitter
type NotifierConfig struct {
	// History is the number of recent notifications kept for inspection
	History int `yaml:"history" mapstructure:"history"`
}

// JournalConfig selects the decision journal backend
type JournalConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ReadModelConfig controls snapshot export
type ReadModelConfig struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// LoggingConfig controls the zap sink
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxDistance:  scorer.DefaultMaxDistance,
			MaxCost:      scorer.DefaultMaxCost,
			Weights:      scorer.DefaultWeights(),
			PassInterval: 10 * time.Second,
		},
		Policy:    policy.Default(),
		Processor: processor.DefaultConfig(),
		Notifier:  NotifierConfig{History: 256},
		Journal:   JournalConfig{Driver: JournalMemory},
		ReadModel: ReadModelConfig{Interval: 30 * time.Second},
		Tracing:   tracing.Config{ServiceName: "shopfloor"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Engine.MaxDistance <= 0 {
		errs = append(errs, fmt.Errorf("engine.maxDistance must be > 0"))
	}
	if c.Engine.MaxCost <= 0 {
		errs = append(errs, fmt.Errorf("engine.maxCost must be > 0"))
	}
	w := c.Engine.Weights
	if w.Skill < 0 || w.Proximity < 0 || w.Efficiency < 0 || w.Cost < 0 {
		errs = append(errs, fmt.Errorf("engine.weights must not be negative"))
	}
	if sum := w.Skill + w.Proximity + w.Efficiency + w.Cost; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("engine.weights must sum to 1, got %v", sum))
	}
	if c.Engine.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("engine.concurrency must not be negative"))
	}
	if c.Engine.PassInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.passInterval must not be negative"))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	if c.Processor.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("processor.workerCount must be > 0"))
	}
	if c.Processor.Throughput < 0 {
		errs = append(errs, fmt.Errorf("processor.throughput must not be negative"))
	}
	if c.Processor.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("processor.retry.maxRetries must not be negative"))
	}
	if c.Processor.ReviewInterval < 0 {
		errs = append(errs, fmt.Errorf("processor.reviewInterval must not be negative"))
	}
	if c.Notifier.History < 0 {
		errs = append(errs, fmt.Errorf("notifier.history must not be negative"))
	}
	switch c.Journal.Driver {
	case "", JournalMemory:
	case JournalSQLite:
		if c.Journal.DSN == "" {
			errs = append(errs, fmt.Errorf("journal.dsn is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported journal.driver %q", c.Journal.Driver))
	}
	if c.ReadModel.Interval < 0 {
		errs = append(errs, fmt.Errorf("readModel.interval must not be negative"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// ParseConfig decodes YAML on top of DefaultConfig
func ParseConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// LoadConfig reads configuration from an optional file and the environment.
// Env var overrides use the SHOPFLOOR_ prefix with dots replaced by
// underscores, e.g. SHOPFLOOR_PROCESSOR_WORKER_COUNT.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("SHOPFLOOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %v: %w", path, err)
		}
	}
	ret := DefaultConfig()
	if err := v.Unmarshal(ret); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// setDefaults registers scalar keys so that AutomaticEnv can override them
// without a config file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("engine.max_distance", c.Engine.MaxDistance)
	v.SetDefault("engine.max_cost", c.Engine.MaxCost)
	v.SetDefault("engine.weights.skill", c.Engine.Weights.Skill)
	v.SetDefault("engine.weights.proximity", c.Engine.Weights.Proximity)
	v.SetDefault("engine.weights.efficiency", c.Engine.Weights.Efficiency)
	v.SetDefault("engine.weights.cost", c.Engine.Weights.Cost)
	v.SetDefault("engine.concurrency", c.Engine.Concurrency)
	v.SetDefault("engine.pass_interval", c.Engine.PassInterval)
	v.SetDefault("policy.stability_buffer", c.Policy.StabilityBuffer)
	v.SetDefault("policy.progress_guard", c.Policy.ProgressGuard)
	v.SetDefault("policy.min_improvement", c.Policy.MinImprovement)
	v.SetDefault("policy.idle_threshold", c.Policy.IdleThreshold)
	v.SetDefault("policy.efficiency_floor", c.Policy.EfficiencyFloor)
	v.SetDefault("processor.worker_count", c.Processor.WorkerCount)
	v.SetDefault("processor.throughput", c.Processor.Throughput)
	v.SetDefault("processor.retry.max_retries", c.Processor.Retry.MaxRetries)
	v.SetDefault("processor.retry.initial_delay", c.Processor.Retry.InitialDelay)
	v.SetDefault("processor.retry.max_delay", c.Processor.Retry.MaxDelay)
	v.SetDefault("processor.review_interval", c.Processor.ReviewInterval)
	v.SetDefault("notifier.history", c.Notifier.History)
	v.SetDefault("journal.driver", c.Journal.Driver)
	v.SetDefault("journal.dsn", c.Journal.DSN)
	v.SetDefault("read_model.url", c.ReadModel.URL)
	v.SetDefault("read_model.interval", c.ReadModel.Interval)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
	v.SetDefault("tracing.version", c.Tracing.Version)
	v.SetDefault("tracing.output", c.Tracing.Output)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.development", c.Logging.Development)
}
