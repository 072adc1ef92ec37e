// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// =============================================================================
// ATTACHMENT KIND
// =============================================================================

// AttachmentKind discriminates how an attachment is serialized. All
// consumers switch on Kind, never on ad hoc type inspection.
type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindDocument AttachmentKind = "document"
	KindOther    AttachmentKind = "other"
)

// textLikeExtensions are filename heuristics used when the MIME type is
// generic. Files with these extensions are inlined as prompt text.
var textLikeExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".rs": true, ".java": true, ".kt": true, ".rb": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".xml": true, ".html": true, ".css": true, ".scss": true,
	".sql": true, ".csv": true, ".tsv": true, ".ini": true,
	".cfg": true, ".conf": true, ".env": true, ".log": true,
	".proto": true, ".graphql": true, ".tf": true, ".dockerfile": true,
}

// textLikeMimePrefixes and textLikeMimeTypes identify MIME types whose
// content is inlined as text.
var textLikeMimeTypes = map[string]bool{
	"application/json":         true,
	"application/xml":          true,
	"application/x-yaml":       true,
	"application/yaml":         true,
	"application/toml":         true,
	"application/javascript":   true,
	"application/x-sh":         true,
	"application/sql":          true,
	"application/x-httpd-php":  true,
	"application/x-perl":       true,
	"application/x-python":     true,
	"application/graphql":      true,
	"application/x-ndjson":     true,
	"application/ld+json":      true,
	"image/svg+xml":            false, // XML but treated as image by prefix first
	"application/octet-stream": false,
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a file referenced by a message. Bytes are read lazily:
// text extraction and base64 encoding happen at serialization time, and the
// first read is memoized because the same attachment may be serialized
// multiple times (original send plus history resends).
type Attachment struct {
	SourcePath  string         `json:"source_path"`
	DisplayName string         `json:"display_name"`
	MimeType    string         `json:"mime_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Kind        AttachmentKind `json:"kind"`

	// Memoized file contents. Guarded by mu; loaded tracks whether the
	// read (successful or not) already happened.
	mu      sync.Mutex
	loaded  bool
	data    []byte
	loadErr error
}

// NewAttachment creates an attachment for the given path. The file is
// stat-ed for its size but not read; content loads lazily on first use.
func NewAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attachment is a directory: %s", path)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	// Strip parameters such as "; charset=utf-8"
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	return &Attachment{
		SourcePath:  path,
		DisplayName: filepath.Base(path),
		MimeType:    mimeType,
		SizeBytes:   info.Size(),
		Kind:        deriveKind(mimeType, path),
	}, nil
}

// deriveKind maps a MIME type to an attachment kind, falling back to
// filename-extension heuristics when the type is generic.
func deriveKind(mimeType, path string) AttachmentKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "text/"), textLikeMimeTypes[mimeType]:
		return KindDocument
	case textLikeExtensions[strings.ToLower(filepath.Ext(path))]:
		return KindDocument
	default:
		return KindOther
	}
}

// IsTextLike reports whether the attachment content should be inlined as
// prompt text.
func (a *Attachment) IsTextLike() bool {
	return a.Kind == KindDocument
}

// Clone returns a copy of the attachment including any memoized content.
func (a *Attachment) Clone() *Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()

	clone := &Attachment{
		SourcePath:  a.SourcePath,
		DisplayName: a.DisplayName,
		MimeType:    a.MimeType,
		SizeBytes:   a.SizeBytes,
		Kind:        a.Kind,
		loaded:      a.loaded,
		loadErr:     a.loadErr,
	}
	if a.data != nil {
		clone.data = make([]byte, len(a.data))
		copy(clone.data, a.data)
	}
	return clone
}

// =============================================================================
// LAZY CONTENT ACCESS
// =============================================================================

// Bytes returns the raw file content, reading it on first call.
func (a *Attachment) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		a.data, a.loadErr = os.ReadFile(a.SourcePath)
		a.loaded = true
	}
	return a.data, a.loadErr
}

// Text returns the decoded text content. UTF-8 is used when valid, with a
// Latin-1 fallback for legacy files.
func (a *Attachment) Text() (string, error) {
	data, err := a.Bytes()
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return decodeLatin1(data), nil
}

// DataURL returns the content as a data URL suitable for an image content
// block. Image bytes larger than maxImageDimension on either edge are
// downscaled and re-encoded before the base64 step to bound payload size.
func (a *Attachment) DataURL() (string, error) {
	data, err := a.Bytes()
	if err != nil {
		return "", err
	}

	mimeType := a.MimeType
	if a.Kind == KindImage {
		if scaled, scaledMime, ok := downscaleImage(data); ok {
			data = scaled
			mimeType = scaledMime
		}
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// decodeLatin1 interprets each byte as a Latin-1 code point. This never
// fails, which makes it a safe terminal fallback.
func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
