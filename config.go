// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Throttle policy names accepted by ThrottleConfig.Policy.
const (
	PolicyUnlimited = "unlimited"
	PolicyStatic    = "static"
	PolicyDynamic   = "dynamic"
)

// ThrottleConfig selects and tunes the throttle policy.
// Zero tunables keep the policy's own defaults.
type ThrottleConfig struct {
	Policy          string `toml:"policy"`
	MaxPendingCount int    `toml:"max_pending_count"`
	MaxPendingSize  int64  `toml:"max_pending_size"`

	MinWindowSize       float64 `toml:"min_window_size"`
	MaxWindowSize       float64 `toml:"max_window_size"`
	WindowSizeIncrement float64 `toml:"window_size_increment"`
	WindowSizeBackOff   float64 `toml:"window_size_backoff"`
	ResizeRate          float64 `toml:"resize_rate"`
	EfficiencyThreshold float64 `toml:"efficiency_threshold"`
	Weight              float64 `toml:"weight"`
	DecrementFactor     float64 `toml:"decrement_factor"`
	MaxThroughput       float64 `toml:"max_throughput"`
}

// Config is the file form of SourceSessionParams.
type Config struct {
	Timeout    time.Duration
	TraceLevel int
	Throttle   ThrottleConfig
}

// fileConfig mirrors the TOML document. Durations are strings.
type fileConfig struct {
	Timeout    string         `toml:"timeout"`
	TraceLevel int            `toml:"trace_level"`
	Throttle   ThrottleConfig `toml:"throttle"`
}

// DefaultConfig returns the defaults applied to absent keys.
func DefaultConfig() Config {
	return Config{
		Timeout:  DefaultTimeout,
		Throttle: ThrottleConfig{Policy: PolicyDynamic},
	}
}

// LoadConfig reads a TOML session config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a TOML session config. Keys the document omits keep
// their DefaultConfig values.
func ParseConfig(data []byte) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return raw.apply(DefaultConfig(), meta.IsDefined)
}

// DecodeConfig decodes a session config nested under key in a larger TOML
// document whose caller deferred that table as a toml.Primitive.
func DecodeConfig(meta toml.MetaData, prim toml.Primitive, key ...string) (Config, error) {
	var raw fileConfig
	if err := meta.PrimitiveDecode(prim, &raw); err != nil {
		return Config{}, err
	}
	defined := func(k ...string) bool {
		return meta.IsDefined(append(append([]string(nil), key...), k...)...)
	}
	return raw.apply(DefaultConfig(), defined)
}

func (raw fileConfig) apply(cfg Config, defined func(key ...string) bool) (Config, error) {
	if defined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("timeout must be positive, got %s", d)
		}
		cfg.Timeout = d
	}
	if defined("trace_level") {
		cfg.TraceLevel = raw.TraceLevel
	}
	if defined("throttle") {
		policy := cfg.Throttle.Policy
		cfg.Throttle = raw.Throttle
		if !defined("throttle", "policy") {
			cfg.Throttle.Policy = policy
		}
	}
	cfg.Throttle.Policy = strings.ToLower(strings.TrimSpace(cfg.Throttle.Policy))
	if _, err := cfg.Throttle.build(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// build returns the policy described by c.
func (c ThrottleConfig) build() (ThrottlePolicy, error) {
	switch c.Policy {
	case PolicyUnlimited, "":
		return Unlimited{}, nil
	case PolicyStatic:
		return NewStaticThrottlePolicy().
			SetMaxPendingCount(c.MaxPendingCount).
			SetMaxPendingSize(c.MaxPendingSize), nil
	case PolicyDynamic:
		p := NewDynamicThrottlePolicy()
		p.SetMaxPendingCount(c.MaxPendingCount)
		p.SetMaxPendingSize(c.MaxPendingSize)
		if c.WindowSizeIncrement > 0 {
			p.SetWindowSizeIncrement(c.WindowSizeIncrement)
		}
		if c.MinWindowSize > 0 {
			p.SetMinWindowSize(c.MinWindowSize)
		}
		if c.MaxWindowSize > 0 {
			p.SetMaxWindowSize(c.MaxWindowSize)
		}
		if c.WindowSizeBackOff > 0 {
			p.SetWindowSizeBackOff(c.WindowSizeBackOff)
		}
		if c.ResizeRate > 0 {
			p.SetResizeRate(c.ResizeRate)
		}
		if c.EfficiencyThreshold > 0 {
			p.SetEfficiencyThreshold(c.EfficiencyThreshold)
		}
		if c.Weight > 0 {
			p.SetWeight(c.Weight)
		}
		if c.DecrementFactor > 0 {
			p.SetWindowSizeDecrementFactor(c.DecrementFactor)
		}
		if c.MaxThroughput > 0 {
			p.SetMaxThroughput(c.MaxThroughput)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown throttle policy %q", c.Policy)
	}
}

// Params builds session params from c with h as reply handler.
// Every call builds a fresh throttle policy; policies are never shared
// between sessions.
func (c Config) Params(h ReplyHandler, logger zerolog.Logger) (SourceSessionParams, error) {
	policy, err := c.Throttle.build()
	if err != nil {
		return SourceSessionParams{}, err
	}
	return SourceSessionParams{
		ReplyHandler: h,
		Throttle:     policy,
		Timeout:      c.Timeout,
		TraceLevel:   c.TraceLevel,
		Logger:       logger,
	}, nil
}
