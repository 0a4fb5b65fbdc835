// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/image/webp"

	"github.com/beaverbot/portal/pkg/delivery"
)

// ErrUnsupportedSticker is returned for sticker formats that cannot be
// converted to a static image (vector/lottie animations).
var ErrUnsupportedSticker = errors.New("unsupported sticker format")

// StickerFetcher downloads the raw sticker payload from the platform CDN.
type StickerFetcher func(ctx context.Context, sticker *delivery.Sticker) ([]byte, error)

// StickerCache converts ephemeral sticker references into durable PNG file
// attachments, cached on disk by sticker id. The cache keeps at most
// maxEntries files; the oldest is evicted first.
type StickerCache struct {
	dir        string
	maxEntries int
	fetch      StickerFetcher
	log        zerolog.Logger
}

func NewStickerCache(dir string, maxEntries int, fetch StickerFetcher, log zerolog.Logger) (*StickerCache, error) {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sticker cache dir: %w", err)
	}
	return &StickerCache{
		dir:        dir,
		maxEntries: maxEntries,
		fetch:      fetch,
		log:        log.With().Str("component", "sticker_cache").Logger(),
	}, nil
}

// File returns an upload-ready PNG for the sticker, converting and caching
// it on first use.
func (c *StickerCache) File(ctx context.Context, sticker *delivery.Sticker) (*delivery.File, error) {
	path := filepath.Join(c.dir, sticker.ID+".png")
	if data, err := os.ReadFile(path); err == nil {
		return &delivery.File{Name: sticker.Name + ".png", ContentType: "image/png", Data: data}, nil
	}

	raw, err := c.fetch(ctx, sticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sticker %s: %w", sticker.ID, err)
	}
	data, err := convertStickerPNG(raw)
	if err != nil {
		return nil, err
	}

	if err = os.WriteFile(path, data, 0o644); err != nil {
		c.log.Warn().Err(err).Str("sticker_id", sticker.ID).Msg("Failed to write sticker cache file")
	} else {
		c.evict()
	}
	return &delivery.File{Name: sticker.Name + ".png", ContentType: "image/png", Data: data}, nil
}

// convertStickerPNG normalizes sticker bytes to PNG. Static PNG/APNG pass
// through (clients render the first frame), webp is decoded and re-encoded,
// anything else (lottie JSON) is unsupported.
func convertStickerPNG(raw []byte) ([]byte, error) {
	switch mimetype.Detect(raw).String() {
	case "image/png", "image/vnd.mozilla.apng":
		return raw, nil
	case "image/webp":
		img, err := webp.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp sticker: %w", err)
		}
		var buf bytes.Buffer
		if err = png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode sticker png: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnsupportedSticker
	}
}

func (c *StickerCache) evict() {
	entries, err := os.ReadDir(c.dir)
	if err != nil || len(entries) <= c.maxEntries {
		return
	}
	type cacheFile struct {
		name  string
		mtime int64
	}
	files := make([]cacheFile, 0, len(entries))
	for _, entry := range entries {
		info, infoErr := entry.Info()
		if infoErr != nil || entry.IsDir() {
			continue
		}
		files = append(files, cacheFile{name: entry.Name(), mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime < files[j].mtime
	})
	for _, file := range files[:max(0, len(files)-c.maxEntries)] {
		if err = os.Remove(filepath.Join(c.dir, file.name)); err != nil {
			c.log.Warn().Err(err).Str("file", file.name).Msg("Failed to evict sticker cache file")
		}
	}
}
