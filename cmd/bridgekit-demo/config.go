// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgekit/pkg/bridge"
	"github.com/aiku/bridgekit/pkg/matrix"
)

type demoConfig struct {
	// Listen is the address the application service API binds to.
	Listen string `yaml:"listen"`
	// Owner is invited to bridged rooms as a real member.
	Owner      id.UserID     `yaml:"owner"`
	AppService matrix.Config `yaml:"appservice"`
	Bridge     bridge.Config `yaml:"bridge"`
}

func loadConfig(path string) (*demoConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg demoConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":29330"
	}
	if err := cfg.Bridge.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
