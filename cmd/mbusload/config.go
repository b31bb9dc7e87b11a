// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"code.hybscloud.com/mbus"
)

// loadConfig is everything one load run needs.
type loadConfig struct {
	Session   mbus.Config
	Workers   int
	QueueSize int
	Latency   time.Duration
	Messages  int
	Producers int
	Service   string
	Size      int
}

func defaultLoadConfig() loadConfig {
	return loadConfig{
		Session:   mbus.DefaultConfig(),
		Workers:   4,
		QueueSize: 1024,
		Messages:  10000,
		Producers: 4,
		Service:   "echo",
		Size:      64,
	}
}

type fileConfig struct {
	Session toml.Primitive `toml:"session"`
	Network struct {
		Workers   int    `toml:"workers"`
		QueueSize int    `toml:"queue_size"`
		Latency   string `toml:"latency"`
	} `toml:"network"`
	Run struct {
		Messages  int    `toml:"messages"`
		Producers int    `toml:"producers"`
		Service   string `toml:"service"`
		Size      int    `toml:"size"`
	} `toml:"run"`
}

func loadFileConfig(path string) (loadConfig, error) {
	cfg := defaultLoadConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return loadConfig{}, fmt.Errorf("load mbusload config: %w", err)
	}

	if meta.IsDefined("session") {
		cfg.Session, err = mbus.DecodeConfig(meta, raw.Session, "session")
		if err != nil {
			return loadConfig{}, fmt.Errorf("parse session: %w", err)
		}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return loadConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("network", "workers") {
		cfg.Workers = raw.Network.Workers
	}
	if meta.IsDefined("network", "queue_size") {
		cfg.QueueSize = raw.Network.QueueSize
	}
	if meta.IsDefined("network", "latency") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Network.Latency))
		if err != nil {
			return loadConfig{}, fmt.Errorf("parse network.latency: %w", err)
		}
		cfg.Latency = d
	}

	if meta.IsDefined("run", "messages") {
		cfg.Messages = raw.Run.Messages
	}
	if meta.IsDefined("run", "producers") {
		cfg.Producers = raw.Run.Producers
	}
	if meta.IsDefined("run", "service") {
		cfg.Service = strings.TrimSpace(raw.Run.Service)
	}
	if meta.IsDefined("run", "size") {
		cfg.Size = raw.Run.Size
	}
	return cfg, cfg.validate()
}

func (c loadConfig) validate() error {
	switch {
	case c.Messages < 0:
		return fmt.Errorf("messages must not be negative")
	case c.Producers <= 0:
		return fmt.Errorf("producers must be positive")
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive")
	case c.Service == "":
		return fmt.Errorf("service must not be empty")
	}
	return nil
}
