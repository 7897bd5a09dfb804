package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
)

const (
	// DefaultTimingConfigMapName is the conventional name of the ConfigMap
	// holding per-kind timing overrides.
	DefaultTimingConfigMapName = "consistency-timing"

	// GlobalDefaultsKey is the ConfigMap key whose entry applies to every kind.
	GlobalDefaultsKey = "default"
)

// KindTiming overrides poll settings for one resource kind. Durations are
// strings such as "5s" or "2m"; empty fields inherit.
type KindTiming struct {
	// Kind selects the resource kind (only used in override entries).
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// PollInterval replaces the interval of every poll on this kind.
	PollInterval string `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`

	UpdateTimeout    string `yaml:"updateTimeout,omitempty" json:"updateTimeout,omitempty"`
	ReadinessTimeout string `yaml:"readinessTimeout,omitempty" json:"readinessTimeout,omitempty"`
	LifecycleTimeout string `yaml:"lifecycleTimeout,omitempty" json:"lifecycleTimeout,omitempty"`

	// CreateGrace and RestartGrace replace the initial delays; "0s" disables them.
	CreateGrace  string `yaml:"createGrace,omitempty" json:"createGrace,omitempty"`
	RestartGrace string `yaml:"restartGrace,omitempty" json:"restartGrace,omitempty"`
}

// TimingConfigData maps a kind, or GlobalDefaultsKey, to its overrides.
type TimingConfigData map[string]KindTiming

func parsePositive(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

func parseNonNegative(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return d, nil
}

// Validate checks that every set duration parses.
func (t *KindTiming) Validate() error {
	for field, value := range map[string]string{
		"pollInterval":     t.PollInterval,
		"updateTimeout":    t.UpdateTimeout,
		"readinessTimeout": t.ReadinessTimeout,
		"lifecycleTimeout": t.LifecycleTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := parsePositive(field, value); err != nil {
			return err
		}
	}
	for field, value := range map[string]string{
		"createGrace":  t.CreateGrace,
		"restartGrace": t.RestartGrace,
	} {
		if value == "" {
			continue
		}
		if _, err := parseNonNegative(field, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseTimingConfigMap parses per-kind timing overrides from a ConfigMap's data.
// The ConfigMap format:
//   - "default": overrides for every kind
//   - "<override-name>": overrides for the kind named by its kind field
//
// Entries that do not parse or validate are skipped. When two entries name the
// same kind, the first key in sorted order wins.
func ParseTimingConfigMap(data map[string]string) TimingConfigData {
	out := make(TimingConfigData)
	if data == nil {
		return out
	}

	kindToKey := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var timing KindTiming
		if err := yaml.Unmarshal([]byte(data[key]), &timing); err != nil {
			ctrl.Log.Info("Failed to parse timing config entry, skipping",
				"key", key,
				"error", err)
			continue
		}

		if err := timing.Validate(); err != nil {
			ctrl.Log.Info("Invalid timing config entry, skipping",
				"key", key,
				"error", err)
			continue
		}

		if key == GlobalDefaultsKey {
			out[GlobalDefaultsKey] = timing
			continue
		}

		if timing.Kind == "" {
			ctrl.Log.Info("Skipping timing config without kind field",
				"key", key)
			continue
		}

		if winningKey, exists := kindToKey[timing.Kind]; exists {
			ctrl.Log.Info("Duplicate kind found in timing ConfigMap - first key wins",
				"kind", timing.Kind,
				"winningKey", winningKey,
				"duplicateKey", key)
			continue
		}
		kindToKey[timing.Kind] = key

		out[timing.Kind] = timing
	}

	ctrl.Log.V(logging.DEBUG).Info("Parsed timing config",
		"kindCount", len(out))

	return out
}

// GetKindTiming returns the overrides for kind merged over the global defaults.
func (data TimingConfigData) GetKindTiming(kind string) KindTiming {
	defaults := data[GlobalDefaultsKey]
	kindTiming, hasKind := data[kind]
	if !hasKind {
		return defaults
	}

	result := defaults
	result.Kind = kindTiming.Kind
	if kindTiming.PollInterval != "" {
		result.PollInterval = kindTiming.PollInterval
	}
	if kindTiming.UpdateTimeout != "" {
		result.UpdateTimeout = kindTiming.UpdateTimeout
	}
	if kindTiming.ReadinessTimeout != "" {
		result.ReadinessTimeout = kindTiming.ReadinessTimeout
	}
	if kindTiming.LifecycleTimeout != "" {
		result.LifecycleTimeout = kindTiming.LifecycleTimeout
	}
	if kindTiming.CreateGrace != "" {
		result.CreateGrace = kindTiming.CreateGrace
	}
	if kindTiming.RestartGrace != "" {
		result.RestartGrace = kindTiming.RestartGrace
	}
	return result
}

// ForKind returns cfg with the overrides of kind applied. When the merged
// settings do not validate, e.g. an interval longer than an inherited timeout,
// the overrides are ignored and cfg is returned unchanged.
func (data TimingConfigData) ForKind(cfg Config, kind string) Config {
	merged := applyKindTiming(cfg, data.GetKindTiming(kind))
	if err := merged.Validate(); err != nil {
		ctrl.Log.Info("Ignoring timing overrides that do not validate",
			"kind", kind,
			"error", err)
		return cfg
	}
	return merged
}

// Entries were validated when parsed, so parse errors cannot occur here.
func applyKindTiming(cfg Config, t KindTiming) Config {
	if t.PollInterval != "" {
		d, _ := time.ParseDuration(t.PollInterval)
		cfg.Update.Interval = d
		cfg.Readiness.Interval = d
		cfg.Lifecycle.Interval = d
	}
	if t.UpdateTimeout != "" {
		cfg.Update.Timeout, _ = time.ParseDuration(t.UpdateTimeout)
	}
	if t.ReadinessTimeout != "" {
		cfg.Readiness.Timeout, _ = time.ParseDuration(t.ReadinessTimeout)
	}
	if t.LifecycleTimeout != "" {
		cfg.Lifecycle.Timeout, _ = time.ParseDuration(t.LifecycleTimeout)
	}
	if t.CreateGrace != "" {
		cfg.CreateGrace, _ = time.ParseDuration(t.CreateGrace)
	}
	if t.RestartGrace != "" {
		cfg.RestartGrace, _ = time.ParseDuration(t.RestartGrace)
	}
	return cfg
}

// LoadTimingConfigMap reads and parses the timing ConfigMap. A missing
// ConfigMap yields no overrides.
func LoadTimingConfigMap(ctx context.Context, c client.Client, namespace, name string) (TimingConfigData, error) {
	cm := &corev1.ConfigMap{}
	if err := c.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, cm); err != nil {
		if apierrors.IsNotFound(err) {
			ctrl.LoggerFrom(ctx).Info("Timing ConfigMap not found, using defaults",
				"namespace", namespace,
				"name", name)
			return make(TimingConfigData), nil
		}
		return nil, fmt.Errorf("reading timing ConfigMap %s/%s: %w", namespace, name, err)
	}
	return ParseTimingConfigMap(cm.Data), nil
}
