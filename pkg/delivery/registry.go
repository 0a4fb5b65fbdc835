// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Config is the platform section of the service config, passed through to
// the adapter factory untouched apart from the type switch.
type Config struct {
	Type  string `yaml:"type"`
	Token string `yaml:"token"`
}

// Factory constructs a platform adapter. Platform bindings register one via
// blank import:
//
//	import _ "github.com/beaverbot/portal/pkg/delivery/discord"
type Factory func(cfg Config, log zerolog.Logger) (Adapter, error)

var (
	registryLock sync.RWMutex
	registry     = map[string]Factory{}
)

// Register makes a platform available to New. Registering the same name
// twice panics; it is always a build wiring mistake.
func Register(name string, factory Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("delivery: platform %q registered twice", name))
	}
	registry[name] = factory
}

// New instantiates the adapter for cfg.Type.
func New(cfg Config, log zerolog.Logger) (Adapter, error) {
	registryLock.RLock()
	factory, ok := registry[cfg.Type]
	registryLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown platform type %q (compiled-in: %v)", cfg.Type, Platforms())
	}
	return factory(cfg, log)
}

// Platforms lists the registered platform names.
func Platforms() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
