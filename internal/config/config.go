package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrConfig is matched by every configuration error. A configuration error is
// fatal: the run aborts before any identifier is scheduled.
var ErrConfig = errors.New("configuration error")

// Error describes an unusable configuration value or input source.
type Error struct {
	Key    string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true for ErrConfig so callers don't need errors.As to detect fatal errors.
func (e *Error) Is(target error) bool {
	return target == ErrConfig
}

// Output modes
const (
	OutputFiles = "files"
	OutputJSONL = "jsonl"
)

// Unknown market policies
const (
	UnknownMarketStrict  = "strict"
	UnknownMarketLenient = "lenient"
)

// Config holds all configuration for a fetch run.
type Config struct {
	// Scheduling and retry
	Concurrency    int     `mapstructure:"concurrency"`
	Retries        int     `mapstructure:"retries"`
	BackoffFactor  float64 `mapstructure:"backoff_factor"`
	MaxBackoff     float64 `mapstructure:"max_backoff"`
	BackoffJitter  float64 `mapstructure:"backoff_jitter"`
	RequestTimeout float64 `mapstructure:"request_timeout"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateBurst      int     `mapstructure:"rate_burst"`

	// Filter
	RankThreshold int `mapstructure:"rank_threshold"`

	// Output
	OutputMode         string `mapstructure:"output_mode"`
	OutputDir          string `mapstructure:"output_dir"`
	OutputFile         string `mapstructure:"output_file"`
	FilenameWithMarket bool   `mapstructure:"filename_with_market"`
	HighRankFile       string `mapstructure:"high_rank_file"`
	FailedFile         string `mapstructure:"failed_file"`

	// Remote API and credentials (opaque, never validated)
	APIBaseURL    string `mapstructure:"api_base_url"`
	APIVersion    string `mapstructure:"api_version"`
	Authorization string `mapstructure:"authorization"`
	Cookie        string `mapstructure:"cookie"`
	Signature     string `mapstructure:"signature"`
	UserAgent     string `mapstructure:"user_agent"`
	VerifyTLS     bool   `mapstructure:"verify_tls"`

	// Connection pool and circuit breaker
	MaxIdleConns    int     `mapstructure:"max_idle_conns"`
	MaxConnsPerHost int     `mapstructure:"max_conns_per_host"`
	BreakerFailures int     `mapstructure:"breaker_failures"`
	BreakerCooldown float64 `mapstructure:"breaker_cooldown"`

	// Identifier source
	SourceFile    string `mapstructure:"source_file"`
	RangeStart    int    `mapstructure:"range_start"`
	RangeEnd      int    `mapstructure:"range_end"`
	UnknownMarket string `mapstructure:"unknown_market"`

	// Observability
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	ProgressEvery int    `mapstructure:"progress_every"`
}

// RequestTimeoutDuration returns the per-attempt deadline.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return seconds(c.RequestTimeout)
}

// BackoffFactorDuration returns the backoff base factor.
func (c *Config) BackoffFactorDuration() time.Duration {
	return seconds(c.BackoffFactor)
}

// MaxBackoffDuration returns the cap applied to a single backoff delay.
func (c *Config) MaxBackoffDuration() time.Duration {
	return seconds(c.MaxBackoff)
}

// BreakerCooldownDuration returns how long an open breaker waits before probing.
func (c *Config) BreakerCooldownDuration() time.Duration {
	return seconds(c.BreakerCooldown)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 100)
	v.SetDefault("retries", 3)
	v.SetDefault("backoff_factor", 0.5)
	v.SetDefault("max_backoff", 300.0)
	v.SetDefault("backoff_jitter", 0.0)
	v.SetDefault("request_timeout", 15.0)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 1)

	v.SetDefault("rank_threshold", 90)

	v.SetDefault("output_mode", OutputJSONL)
	v.SetDefault("output_dir", "out")
	v.SetDefault("output_file", "output.jsonl")
	v.SetDefault("filename_with_market", false)
	v.SetDefault("high_rank_file", "rank_above_90.txt")
	v.SetDefault("failed_file", "failed.txt")

	v.SetDefault("api_base_url", "https://www.gurufocus.com/reader/_api/gf_rank")
	v.SetDefault("api_version", "1.7.44")
	v.SetDefault("authorization", "")
	v.SetDefault("cookie", "")
	v.SetDefault("signature", "")
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	v.SetDefault("verify_tls", true)

	v.SetDefault("max_idle_conns", 100)
	v.SetDefault("max_conns_per_host", 0)
	v.SetDefault("breaker_failures", 0)
	v.SetDefault("breaker_cooldown", 30.0)

	v.SetDefault("source_file", "")
	v.SetDefault("range_start", 603001)
	v.SetDefault("range_end", 605600)
	v.SetDefault("unknown_market", UnknownMarketStrict)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("progress_every", 100)
}

// Load resolves configuration from defaults, an optional config file, environment
// variables and command-line flags, in increasing order of precedence.
//
// configFile may be empty, in which case rankfetch.yaml is looked up in the working
// directory and $HOME/.rankfetch and silently skipped when absent. flags may be nil.
//
// Every key can be set from the environment as RANKFETCH_<KEY>, e.g.
// RANKFETCH_CONCURRENCY=50. Credentials also accept:
//   - GF_AUTHORIZATION
//   - GF_COOKIE
//   - GF_SIGNATURE
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RANKFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.BindEnv("authorization", "RANKFETCH_AUTHORIZATION", "GF_AUTHORIZATION")
	v.BindEnv("cookie", "RANKFETCH_COOKIE", "GF_COOKIE")
	v.BindEnv("signature", "RANKFETCH_SIGNATURE", "GF_SIGNATURE")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Key: "config", Reason: "failed to read config file " + configFile, Err: err}
		}
	} else {
		v.SetConfigName("rankfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rankfetch")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, &Error{Key: "config", Reason: "failed to parse config file", Err: err}
			}
		}
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if v.Get(key) == nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, &Error{Key: "flags", Reason: "failed to bind flags", Err: bindErr}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Key: "config", Reason: "failed to unmarshal config", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges. The first offending key is reported.
func (c *Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return &Error{Key: "concurrency", Reason: fmt.Sprintf("must be a positive integer, got %d", c.Concurrency)}
	case c.Retries < 0:
		return &Error{Key: "retries", Reason: fmt.Sprintf("must be non-negative, got %d", c.Retries)}
	case c.BackoffFactor <= 0:
		return &Error{Key: "backoff_factor", Reason: fmt.Sprintf("must be positive, got %g", c.BackoffFactor)}
	case c.MaxBackoff <= 0:
		return &Error{Key: "max_backoff", Reason: fmt.Sprintf("must be positive, got %g", c.MaxBackoff)}
	case c.BackoffJitter < 0 || c.BackoffJitter >= 1:
		return &Error{Key: "backoff_jitter", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.BackoffJitter)}
	case c.RequestTimeout <= 0:
		return &Error{Key: "request_timeout", Reason: fmt.Sprintf("must be positive, got %g", c.RequestTimeout)}
	case c.RateLimit < 0:
		return &Error{Key: "rate_limit", Reason: fmt.Sprintf("must be non-negative, got %g", c.RateLimit)}
	case c.RateLimit > 0 && c.RateBurst <= 0:
		return &Error{Key: "rate_burst", Reason: "must be positive when rate_limit is set"}
	case c.BreakerFailures < 0:
		return &Error{Key: "breaker_failures", Reason: "must be non-negative"}
	case c.BreakerFailures > 0 && c.BreakerCooldown <= 0:
		return &Error{Key: "breaker_cooldown", Reason: "must be positive when breaker_failures is set"}
	case c.ProgressEvery < 0:
		return &Error{Key: "progress_every", Reason: "must be non-negative"}
	case c.APIBaseURL == "":
		return &Error{Key: "api_base_url", Reason: "must not be empty"}
	}

	switch c.OutputMode {
	case OutputFiles:
		if c.OutputDir == "" {
			return &Error{Key: "output_dir", Reason: "required when output_mode is files"}
		}
	case OutputJSONL:
		if c.OutputFile == "" {
			return &Error{Key: "output_file", Reason: "required when output_mode is jsonl"}
		}
	default:
		return &Error{Key: "output_mode", Reason: fmt.Sprintf("must be %q or %q, got %q", OutputFiles, OutputJSONL, c.OutputMode)}
	}

	switch c.UnknownMarket {
	case UnknownMarketStrict, UnknownMarketLenient:
	default:
		return &Error{Key: "unknown_market", Reason: fmt.Sprintf("must be %q or %q, got %q", UnknownMarketStrict, UnknownMarketLenient, c.UnknownMarket)}
	}

	if c.SourceFile == "" && c.RangeEnd <= c.RangeStart {
		return &Error{Key: "range_end", Reason: fmt.Sprintf("must be greater than range_start (%d), got %d", c.RangeStart, c.RangeEnd)}
	}
	if c.SourceFile == "" && (c.RangeStart < 0 || c.RangeEnd > 1000000) {
		return &Error{Key: "range_start", Reason: "range must stay within six-digit codes"}
	}

	return nil
}
