// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transform

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/beaverbot/portal/pkg/delivery"
)

const (
	// MaxUploadSize is the platform upload ceiling for webhook sends.
	MaxUploadSize = 8 << 20
	// uploadSafetyMargin leaves room for the multipart envelope around
	// the file payload.
	uploadSafetyMargin = 256 << 10

	// DefaultSizeLimit is what ConvertAttachments uses when the caller
	// passes no limit.
	DefaultSizeLimit = MaxUploadSize - uploadSafetyMargin
)

// ConvertAttachments partitions a message's attachments into "linkified"
// (relayed as a URL because they are media or too large to re-upload) and
// "remaining" (small non-media files that get re-uploaded directly).
func ConvertAttachments(attachments []delivery.Attachment, sizeLimit int64) (linkified, remaining []delivery.Attachment) {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	for _, att := range attachments {
		if isMediaType(att.ContentType, att.Filename) || att.Size > sizeLimit {
			linkified = append(linkified, att)
		} else {
			remaining = append(remaining, att)
		}
	}
	return
}

func isMediaType(contentType, filename string) bool {
	if contentType == "" {
		// Platforms occasionally omit the content type; fall back to the
		// file extension.
		if idx := strings.LastIndexByte(filename, '.'); idx >= 0 {
			contentType = extensionMime(filename[idx:])
		}
	}
	return strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/")
}

// extensionMime covers the handful of media extensions the platform CDN
// serves without a content type.
func extensionMime(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return ""
	}
}

// FileFromData wraps downloaded attachment bytes as an upload-ready file,
// sniffing the content type when the platform did not provide one.
func FileFromData(att delivery.Attachment, data []byte) delivery.File {
	contentType := att.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return delivery.File{
		Name:        att.Filename,
		ContentType: contentType,
		Data:        data,
	}
}
