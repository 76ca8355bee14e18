package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mitchelldurbincs/ImprovedQ/internal/events"
	"github.com/mitchelldurbincs/ImprovedQ/internal/experiment"
)

// Config holds all configuration for the application
type Config struct {
	Experiment experiment.Config `mapstructure:"experiment"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Output     OutputConfig      `mapstructure:"output"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
	// Events limits which experiment event types are logged; empty logs all
	Events []string `mapstructure:"events"`
}

// OutputConfig selects what the CLI writes besides the rate table
type OutputConfig struct {
	ShowQ     bool   `mapstructure:"show_q"`
	Color     bool   `mapstructure:"color"`
	Summary   bool   `mapstructure:"summary"`
	ChartPath string `mapstructure:"chart_path"`
}

var (
	// Global config instance. mu guards cfg, which the file watcher replaces.
	mu  sync.RWMutex
	cfg *Config
	v   *viper.Viper

	baseFile    string // config file that was read, empty when running on defaults
	overlayFile string // environment overlay merged over baseFile
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	exp := experiment.DefaultConfig()

	// Experiment defaults
	v.SetDefault("experiment.trials", exp.Trials)
	v.SetDefault("experiment.episodes", exp.Episodes)
	v.SetDefault("experiment.epsilon", exp.Epsilon)
	v.SetDefault("experiment.seed_base", exp.SeedBase)
	v.SetDefault("experiment.parallelism", exp.Parallelism)
	v.SetDefault("experiment.update_rule", exp.UpdateRule)
	v.SetDefault("experiment.max_steps_per_episode", exp.MaxStepsPerEpisode)

	// Learner defaults
	v.SetDefault("experiment.agent.action_count", exp.Agent.ActionCount)
	v.SetDefault("experiment.agent.state_count", exp.Agent.StateCount)
	v.SetDefault("experiment.agent.learning_rate", exp.Agent.LearningRate)
	v.SetDefault("experiment.agent.discount_rate", exp.Agent.DiscountRate)
	v.SetDefault("experiment.agent.initial_value", exp.Agent.InitialValue)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.events", []string{})

	// Output defaults
	v.SetDefault("output.show_q", false)
	v.SetDefault("output.color", false)
	v.SetDefault("output.summary", false)
	v.SetDefault("output.chart_path", "")
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()
	baseFile, overlayFile = "", ""
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/improvedq")
	}

	// IMPROVEDQ_EXPERIMENT_TRIALS overrides experiment.trials
	v.SetEnvPrefix("IMPROVEDQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	switch {
	case err == nil:
		baseFile = v.ConfigFileUsed()
	case configPath != "" && errors.Is(err, fs.ErrNotExist):
		// Requested file is missing; run on defaults
	case configPath == "" && isNotFound(err):
		// Nothing in the search paths; run on defaults
	default:
		return fmt.Errorf("error reading config file: %w", err)
	}

	next, err := decode(v)
	if err != nil {
		return err
	}
	if err := Validate(next); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	replace(next)

	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

func decode(vp *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return c, nil
}

func replace(c *Config) {
	mu.Lock()
	cfg = c
	mu.Unlock()
}

// Get returns the global config instance. The returned value is never
// modified; reloads swap in a new one.
func Get() *Config {
	mu.RLock()
	c := cfg
	mu.RUnlock()
	if c != nil {
		return c
	}

	if err := Init(""); err != nil {
		panic("failed to initialize config with defaults: " + err.Error())
	}
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadEnvironmentConfig merges config.<env>.yaml over the loaded config
func LoadEnvironmentConfig(env string) error {
	if env == "" {
		return nil
	}

	overlayFile = fmt.Sprintf("config.%s.yaml", env)
	if err := mergeOverlay(v, overlayFile, baseFile); err != nil {
		return err
	}

	next, err := decode(v)
	if err != nil {
		return fmt.Errorf("unable to decode merged config: %w", err)
	}
	if err := Validate(next); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	replace(next)
	return nil
}

// mergeOverlay merges overlay into vp and points vp back at base, so a later
// reload or watch still targets the base file. A missing overlay is skipped.
func mergeOverlay(vp *viper.Viper, overlay, base string) error {
	if overlay == "" {
		return nil
	}
	vp.SetConfigFile(overlay)
	defer func() {
		if base != "" {
			vp.SetConfigFile(base)
		}
	}()

	if err := vp.MergeInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotFound(err) {
		return fmt.Errorf("error merging environment config %s: %w", overlay, err)
	}
	return nil
}

// ConfigFilePath returns the path of the loaded base config file, or empty
// when running on defaults
func ConfigFilePath() string {
	return baseFile
}

// WatchConfig enables hot-reloading of the base config file. Any environment
// overlay is merged again after each reload. onChange receives the new
// config, or nil and the error if the file no longer reads, decodes or
// validates; the previous config then stays in place.
func WatchConfig(onChange func(*Config, error)) {
	watched, overlay, base := v, overlayFile, baseFile
	watched.OnConfigChange(func(e fsnotify.Event) {
		// Read again: viper drops read errors before calling back
		err := watched.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error reading config file: %w", err)
		} else {
			err = mergeOverlay(watched, overlay, base)
		}
		var next *Config
		if err == nil {
			next, err = decode(watched)
		}
		if err == nil {
			if err = Validate(next); err != nil {
				err = fmt.Errorf("config validation failed: %w", err)
			}
		}
		if err != nil {
			next = nil
		} else {
			replace(next)
		}
		if onChange != nil {
			onChange(next, err)
		}
	})
	watched.WatchConfig()
}

// Validate validates the configuration values
func Validate(c *Config) error {
	if err := c.Experiment.Validate(); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	for _, t := range c.Logging.Events {
		switch t {
		case events.TypeTrialStarted, events.TypeEpisodeCompleted, events.TypeTrialCompleted:
		default:
			return fmt.Errorf("logging.events: unknown event type %q", t)
		}
	}

	return nil
}
