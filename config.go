package chcommon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

type (
	// configFile is the top-level structure of a configuration file.
	configFile struct {
		Policies map[string]PolicyConfig `json:"policies" yaml:"policies"`
		Render   RenderConfig            `json:"render"   yaml:"render"`
	}

	// PolicyConfig holds the decoded configuration of one retry policy.
	// Embed it in your own config struct for JSON or YAML unmarshaling,
	// then call [BuildPolicy].
	PolicyConfig struct {
		// MaxAttempts is the total number of attempts.
		// Optional, default 3. Example: 5.
		MaxAttempts *int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
		// BaseDelay is the wait after the first failure.
		// Optional. Parsed via time.ParseDuration. Example: "100ms".
		BaseDelay *string `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
		// BackoffMultiplier is the exponential growth factor, at least 1.
		// Optional, default 2. Example: 1.5.
		BackoffMultiplier *float64 `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
		// MaxDelay caps every delay. Without base_delay, a cap below the
		// default base delay lowers the base to the cap.
		// Optional. Parsed via time.ParseDuration. Example: "30s".
		MaxDelay *string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
		// Jitter draws each delay uniformly from [0, delay].
		// Optional, default false.
		Jitter *bool `json:"jitter,omitempty" yaml:"jitter,omitempty"`
		// Backoff is the delay schedule.
		// Optional. One of: "exponential" (default), "constant", "linear".
		Backoff *string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
		// RetryOn lists the error kinds that are retried. Optional; when
		// empty the default classification applies.
		// Example: ["timeout", "connection", "server"].
		RetryOn []string `json:"retry_on,omitempty" yaml:"retry_on,omitempty"`
		// Timeout bounds a whole call.
		// Optional. Parsed via time.ParseDuration. Example: "1m".
		Timeout *string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	}

	// RenderConfig holds template rendering settings.
	RenderConfig struct {
		// MissingVariables is "strict" (default) or "relaxed".
		MissingVariables string `json:"missing_variables,omitempty" yaml:"missing_variables,omitempty"`
	}
)

// LoadConfig reads a JSON or YAML configuration file (chosen by the .yaml or
// .yml extension) and returns a [Registry] holding the built policies. Every
// policy is validated at load time.
func LoadConfig(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chcommon: read config: %w", err)
	}

	return ParseConfig(data, filepath.Ext(path))
}

// ParseConfig is [LoadConfig] over bytes already read. ext is the file
// extension, with or without the leading dot; ".yaml" and ".yml" select
// YAML and anything else JSON.
func ParseConfig(data []byte, ext string) (*Registry, error) {
	var (
		cfg configFile
		err error
	)

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("chcommon: parse config: %w", err)
	}

	switch cfg.Render.MissingVariables {
	case "", "strict", "relaxed":
	default:
		return nil, fmt.Errorf(
			"chcommon: render.missing_variables: unknown policy %q",
			cfg.Render.MissingVariables,
		)
	}

	reg := NewRegistry()
	reg.render = cfg.Render

	for name, pc := range cfg.Policies {
		policy, buildErr := BuildPolicy(&pc)
		if buildErr != nil {
			return nil, fmt.Errorf("chcommon: policy %q: %w", name, buildErr)
		}

		timeout, buildErr := parseOptionalDuration("timeout", pc.Timeout)
		if buildErr != nil {
			return nil, fmt.Errorf("chcommon: policy %q: %w", name, buildErr)
		}

		reg.Register(name, policy, timeout)
	}

	return reg, nil
}

// BuildPolicy converts a [PolicyConfig] into a [RetryPolicy]. The timeout
// field is not part of the policy; see [Registry.Timeout].
func BuildPolicy(pc *PolicyConfig) (*RetryPolicy, error) {
	var opts []PolicyOption

	if pc.MaxAttempts != nil {
		opts = append(opts, MaxAttempts(*pc.MaxAttempts))
	}

	base := DefaultBaseDelay

	if pc.BaseDelay != nil {
		d, err := time.ParseDuration(*pc.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("base_delay: %w", err)
		}

		base = d
		opts = append(opts, BaseDelay(d))
	}

	multiplier := DefaultMultiplier

	if pc.BackoffMultiplier != nil {
		multiplier = *pc.BackoffMultiplier
		opts = append(opts, Multiplier(multiplier))
	}

	if pc.MaxDelay != nil {
		d, err := time.ParseDuration(*pc.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("max_delay: %w", err)
		}

		opts = append(opts, MaxDelay(d))

		if pc.BaseDelay == nil && d >= 0 && d < base {
			base = d
		}
	}

	if pc.Jitter != nil {
		opts = append(opts, Jitter(*pc.Jitter))
	}

	if pc.Backoff != nil {
		strategy, err := parseBackoffStrategy(*pc.Backoff, base, multiplier)
		if err != nil {
			return nil, err
		}

		opts = append(opts, Backoff(strategy))
	}

	if len(pc.RetryOn) > 0 {
		kinds := make([]ErrorKind, 0, len(pc.RetryOn))
		for _, k := range pc.RetryOn {
			kinds = append(kinds, ErrorKind(k))
		}

		opts = append(opts, WithClassification(RetryOn(kinds...)))
	}

	return NewRetryPolicy(opts...)
}

//nolint:ireturn // returns interface by design for strategy pattern
func parseBackoffStrategy(
	name string,
	base time.Duration,
	multiplier float64,
) (BackoffStrategy, error) {
	switch name {
	case "exponential":
		return ExponentialBackoff(base, multiplier), nil
	case "constant":
		return ConstantBackoff(base), nil
	case "linear":
		return LinearBackoff(base), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", name)
	}
}

func parseOptionalDuration(field string, s *string) (time.Duration, error) {
	if s == nil {
		return 0, nil
	}

	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %v", field, d)
	}

	return d, nil
}
