// Package config loads the timing and connection settings of the consistency
// helpers from flags, CONSISTENCY_* environment variables and an optional
// config file, and parses per-kind timing overrides kept in a ConfigMap.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CONSISTENCY"

// Configuration keys, also used as flag names.
const (
	KeyKubeconfig        = "kubeconfig"
	KeyContext           = "context"
	KeyLogLevel          = "log-level"
	KeyUpdateInterval    = "update-interval"
	KeyUpdateTimeout     = "update-timeout"
	KeyReadinessInterval = "readiness-interval"
	KeyReadinessTimeout  = "readiness-timeout"
	KeyLifecycleInterval = "lifecycle-interval"
	KeyLifecycleTimeout  = "lifecycle-timeout"
	KeyCreateGrace       = "create-grace"
	KeyRestartGrace      = "restart-grace"
	KeyTimingConfigMap   = "timing-configmap"
)

// Defaults.
const (
	DefaultUpdateInterval    = 3 * time.Second
	DefaultUpdateTimeout     = 120 * time.Second
	DefaultReadinessInterval = 5 * time.Second
	DefaultReadinessTimeout  = 60 * time.Second
	DefaultLifecycleInterval = 5 * time.Second
	DefaultLifecycleTimeout  = 300 * time.Second
	DefaultCreateGrace       = 30 * time.Second
	DefaultRestartGrace      = 120 * time.Second
)

var errInvalidTimingConfigMap = errors.New("timing ConfigMap must be given as namespace/name")

// Timing is the interval and deadline of one kind of poll.
type Timing struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller returns a Poller using the real clock.
func (t Timing) Poller() *poller.Poller {
	return poller.New(t.Interval, t.Timeout)
}

func (t Timing) validate(name string) error {
	if t.Interval <= 0 {
		return fmt.Errorf("%s interval must be positive, got %s", name, t.Interval)
	}
	if t.Timeout < t.Interval {
		return fmt.Errorf("%s timeout (%s) must not be shorter than its interval (%s)", name, t.Timeout, t.Interval)
	}
	return nil
}

// Config holds the effective settings.
type Config struct {
	Kubeconfig string
	Context    string
	LogLevel   string

	// Update bounds conditional updates.
	Update Timing
	// Readiness bounds waits for readiness markers.
	Readiness Timing
	// Lifecycle bounds waits for deletion and restart.
	Lifecycle Timing

	// CreateGrace is waited after a create before the first observation.
	CreateGrace time.Duration
	// RestartGrace is waited after a restart request before the first observation.
	RestartGrace time.Duration

	// TimingConfigMap optionally names a namespace/name ConfigMap of per-kind overrides.
	TimingConfigMap string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:     "info",
		Update:       Timing{Interval: DefaultUpdateInterval, Timeout: DefaultUpdateTimeout},
		Readiness:    Timing{Interval: DefaultReadinessInterval, Timeout: DefaultReadinessTimeout},
		Lifecycle:    Timing{Interval: DefaultLifecycleInterval, Timeout: DefaultLifecycleTimeout},
		CreateGrace:  DefaultCreateGrace,
		RestartGrace: DefaultRestartGrace,
	}
}

// Validate checks the poll settings.
func (c *Config) Validate() error {
	if err := c.Update.validate("update"); err != nil {
		return err
	}
	if err := c.Readiness.validate("readiness"); err != nil {
		return err
	}
	if err := c.Lifecycle.validate("lifecycle"); err != nil {
		return err
	}
	if c.CreateGrace < 0 || c.RestartGrace < 0 {
		return fmt.Errorf("grace delays must not be negative, got create=%s restart=%s", c.CreateGrace, c.RestartGrace)
	}
	if c.TimingConfigMap != "" {
		if _, _, err := c.TimingConfigMapKey(); err != nil {
			return err
		}
	}
	return nil
}

// TimingConfigMapKey splits TimingConfigMap into namespace and name.
func (c *Config) TimingConfigMapKey() (string, string, error) {
	namespace, name, ok := strings.Cut(c.TimingConfigMap, "/")
	if !ok || namespace == "" || name == "" {
		return "", "", fmt.Errorf("%w, got %q", errInvalidTimingConfigMap, c.TimingConfigMap)
	}
	return namespace, name, nil
}

// BindFlags registers every setting on fs with its default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyKubeconfig, "", "Path to the kubeconfig file (defaults to KUBECONFIG or ~/.kube/config)")
	fs.String(KeyContext, "", "Kubeconfig context to use")
	fs.String(KeyLogLevel, d.LogLevel, "Log verbosity: info, debug or trace")
	fs.Duration(KeyUpdateInterval, d.Update.Interval, "Delay between conditional update attempts")
	fs.Duration(KeyUpdateTimeout, d.Update.Timeout, "Deadline of a conditional update")
	fs.Duration(KeyReadinessInterval, d.Readiness.Interval, "Delay between readiness observations")
	fs.Duration(KeyReadinessTimeout, d.Readiness.Timeout, "Deadline of a readiness wait")
	fs.Duration(KeyLifecycleInterval, d.Lifecycle.Interval, "Delay between deletion or restart observations")
	fs.Duration(KeyLifecycleTimeout, d.Lifecycle.Timeout, "Deadline of a deletion or restart wait")
	fs.Duration(KeyCreateGrace, d.CreateGrace, "Delay after a create before the first observation")
	fs.Duration(KeyRestartGrace, d.RestartGrace, "Delay after a restart before the first observation")
	fs.String(KeyTimingConfigMap, "", "namespace/name of a ConfigMap with per-kind timing overrides")
}

// NewViper returns a viper instance reading CONSISTENCY_* variables, bound to fs.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}
	return v, nil
}

// Load resolves the configuration from v. Precedence is flag, environment,
// config file, default. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	d := Default()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyUpdateInterval, d.Update.Interval)
	v.SetDefault(KeyUpdateTimeout, d.Update.Timeout)
	v.SetDefault(KeyReadinessInterval, d.Readiness.Interval)
	v.SetDefault(KeyReadinessTimeout, d.Readiness.Timeout)
	v.SetDefault(KeyLifecycleInterval, d.Lifecycle.Interval)
	v.SetDefault(KeyLifecycleTimeout, d.Lifecycle.Timeout)
	v.SetDefault(KeyCreateGrace, d.CreateGrace)
	v.SetDefault(KeyRestartGrace, d.RestartGrace)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Kubeconfig:      v.GetString(KeyKubeconfig),
		Context:         v.GetString(KeyContext),
		LogLevel:        v.GetString(KeyLogLevel),
		Update:          Timing{Interval: v.GetDuration(KeyUpdateInterval), Timeout: v.GetDuration(KeyUpdateTimeout)},
		Readiness:       Timing{Interval: v.GetDuration(KeyReadinessInterval), Timeout: v.GetDuration(KeyReadinessTimeout)},
		Lifecycle:       Timing{Interval: v.GetDuration(KeyLifecycleInterval), Timeout: v.GetDuration(KeyLifecycleTimeout)},
		CreateGrace:     v.GetDuration(KeyCreateGrace),
		RestartGrace:    v.GetDuration(KeyRestartGrace),
		TimingConfigMap: v.GetString(KeyTimingConfigMap),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
