// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package channels

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ManuGH/backend/internal/config"
)

// Layers holds every configured channel layer by alias.
type Layers struct {
	byAlias map[string]*Layer
}

// Open builds all layers in s.ChannelLayers.
func Open(s config.Settings, factory ClientFactory) (*Layers, error) {
	ls := &Layers{byAlias: make(map[string]*Layer, len(s.ChannelLayers))}
	aliases := make([]string, 0, len(s.ChannelLayers))
	for alias := range s.ChannelLayers {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		layer, err := NewLayer(alias, s.ChannelLayers[alias], factory)
		if err != nil {
			_ = ls.Close()
			return nil, fmt.Errorf("channel layer %s: %w", alias, err)
		}
		ls.byAlias[alias] = layer
	}
	return ls, nil
}

// Get returns the layer named alias.
func (ls *Layers) Get(alias string) (*Layer, bool) {
	l, ok := ls.byAlias[alias]
	return l, ok
}

// Default returns the "default" layer.
func (ls *Layers) Default() (*Layer, bool) {
	return ls.Get(config.DefaultChannelLayerAlias)
}

// Close closes every layer.
func (ls *Layers) Close() error {
	var errs []error
	for _, l := range ls.byAlias {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
