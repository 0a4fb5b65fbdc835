// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portalconfig_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/beaverbot/portal/pkg/portalconfig"
)

func TestExampleConfigParses(t *testing.T) {
	var cfg portalconfig.Config
	require.NoError(t, yaml.Unmarshal([]byte(portalconfig.ExampleConfig), &cfg))

	assert.Equal(t, "sqlite3", cfg.Database.Type)
	assert.Equal(t, "example", cfg.Platform.Type)
	assert.Equal(t, "!portal", cfg.Relay.CommandPrefix)
	assert.Equal(t, 64, cfg.Relay.StickerCacheSize)

	engineCfg := cfg.EngineConfig()
	assert.Equal(t, "!portal", engineCfg.CommandPrefix)
	assert.Equal(t, "./stickers", engineCfg.StickerCacheDir)
	assert.Zero(t, engineCfg.AttachmentSizeLimit)
}

func TestConfig_RejectsMissingPlatformType(t *testing.T) {
	raw := strings.Replace(portalconfig.ExampleConfig, "type: example", `type: ""`, 1)
	var cfg portalconfig.Config
	err := yaml.Unmarshal([]byte(raw), &cfg)
	require.ErrorContains(t, err, "platform.type")
}

func TestLoad_MigratesOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	// A config from an older version missing the relay section entirely.
	stripped := portalconfig.ExampleConfig[:strings.Index(portalconfig.ExampleConfig, "# Relay behavior.")] +
		portalconfig.ExampleConfig[strings.Index(portalconfig.ExampleConfig, "# Logger config"):]
	require.NoError(t, os.WriteFile(path, []byte(stripped), 0o600))

	cfg, err := portalconfig.Load(path, true)
	require.NoError(t, err)
	// Missing keys come back from the embedded base config.
	assert.Equal(t, "!portal", cfg.Relay.CommandPrefix)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "command_prefix")
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(portalconfig.ExampleConfig), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var reloads atomic.Int32
	var lastPrefix atomic.Value
	go func() {
		_ = portalconfig.Watch(ctx, path, zerolog.Nop(), func(cfg *portalconfig.Config) {
			lastPrefix.Store(cfg.Relay.CommandPrefix)
			reloads.Add(1)
		})
	}()
	// Give the watcher a moment to attach before writing.
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(portalconfig.ExampleConfig, `command_prefix: "!portal"`, `command_prefix: "!relay"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "!relay", lastPrefix.Load())
}
