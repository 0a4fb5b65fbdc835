// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package portalconfig loads, upgrades and watches the relay's yaml config.
package portalconfig

import (
	_ "embed"
	"fmt"
	"strings"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/portal"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	Database dbutil.Config     `yaml:"database"`
	Platform delivery.Config   `yaml:"platform"`
	Relay    RelayConfig       `yaml:"relay"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// RelayConfig holds the engine tunables. Everything here is hot-reloadable
// except the sticker cache settings, which only apply at startup.
type RelayConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
	// AttachmentSizeLimit is the re-upload cutoff in bytes. Zero means the
	// platform upload limit minus a safety margin.
	AttachmentSizeLimit int64  `yaml:"attachment_size_limit"`
	StickerCacheDir     string `yaml:"sticker_cache_dir"`
	StickerCacheSize    int    `yaml:"sticker_cache_size"`
}

type umConfig Config

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	err := node.Decode((*umConfig)(c))
	if err != nil {
		return err
	}
	return c.PostProcess()
}

func (c *Config) PostProcess() error {
	if c.Platform.Type == "" {
		return fmt.Errorf("platform.type is not set")
	}
	if strings.TrimSpace(c.Relay.CommandPrefix) != c.Relay.CommandPrefix {
		return fmt.Errorf("relay.command_prefix must not have surrounding whitespace")
	}
	return nil
}

// EngineConfig converts the yaml tunables into the engine's config struct.
func (c *Config) EngineConfig() portal.Config {
	return portal.Config{
		CommandPrefix:       c.Relay.CommandPrefix,
		AttachmentSizeLimit: c.Relay.AttachmentSizeLimit,
		StickerCacheDir:     c.Relay.StickerCacheDir,
		StickerCacheSize:    c.Relay.StickerCacheSize,
	}
}

func doUpgrade(helper up.Helper) {
	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")
	helper.Copy(up.Int, "database", "max_idle_conns")

	helper.Copy(up.Str, "platform", "type")
	helper.Copy(up.Str, "platform", "token")

	helper.Copy(up.Str, "relay", "command_prefix")
	helper.Copy(up.Int, "relay", "attachment_size_limit")
	helper.Copy(up.Str, "relay", "sticker_cache_dir")
	helper.Copy(up.Int, "relay", "sticker_cache_size")

	helper.Copy(up.Map, "logging")
}

// SpacedBlocks are the top-level sections that get a blank line between
// them when the upgraded config is written back.
var SpacedBlocks = [][]string{
	{"database"},
	{"platform"},
	{"relay"},
	{"logging"},
}

var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(doUpgrade),
	Blocks:         SpacedBlocks,
	Base:           ExampleConfig,
}

// Load reads, migrates and parses the config file. With save set, the
// migrated config is written back to disk.
func Load(path string, save bool) (*Config, error) {
	data, _, err := up.Do(path, save, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
