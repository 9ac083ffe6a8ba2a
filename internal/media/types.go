// Package media decides what kind of content a post links to and starts
// an external program to show it.
package media

import (
	_ "embed"
	"fmt"
	"net/url"
	"path"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/rdt/internal/model"
)

//go:embed media.toml
var mediaTOML []byte

type Type int

const (
	TypeLink Type = iota
	TypeImage
	TypeVideo
	TypeGallery
	TypeSelf
)

func (t Type) String() string {
	switch t {
	case TypeImage:
		return "image"
	case TypeVideo:
		return "video"
	case TypeGallery:
		return "gallery"
	case TypeSelf:
		return "self"
	default:
		return "link"
	}
}

type TypeConfig struct {
	Extensions  []string `toml:"extensions"`
	URLPatterns []string `toml:"url_patterns"`
}

type PlatformConfig struct {
	DefaultOpener string `toml:"default_opener"`
}

// mediaFile is the shape of media.toml.
type mediaFile struct {
	Video     TypeConfig                  `toml:"video"`
	Image     TypeConfig                  `toml:"image"`
	Gallery   TypeConfig                  `toml:"gallery"`
	Platforms map[string]PlatformConfig   `toml:"platforms"`
	Players   map[string]PlayerDefinition `toml:"players"`
}

func parseMediaFile(data []byte) (*mediaFile, error) {
	var f mediaFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing media table: %w", err)
	}
	return &f, nil
}

type TypeDetector struct {
	config *mediaFile
}

func NewTypeDetector() (*TypeDetector, error) {
	f, err := parseMediaFile(mediaTOML)
	if err != nil {
		return nil, err
	}
	return &TypeDetector{config: f}, nil
}

// Classify returns the content type of a post. Self posts link back to
// their own comments page.
func (d *TypeDetector) Classify(item model.FeedItem) Type {
	if item.URL == "" || (item.Permalink != "" && strings.HasSuffix(item.URL, item.Permalink)) {
		return TypeSelf
	}
	return d.DetectType(item.URL)
}

// DetectType classifies a URL by extension first, then by host patterns.
func (d *TypeDetector) DetectType(raw string) Type {
	lower := strings.ToLower(raw)

	var ext string
	if u, err := url.Parse(lower); err == nil {
		ext = strings.TrimPrefix(path.Ext(u.Path), ".")
	}

	if ext != "" {
		if hasExtension(d.config.Video.Extensions, ext) {
			return TypeVideo
		}
		if hasExtension(d.config.Image.Extensions, ext) {
			return TypeImage
		}
	}

	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return TypeLink
	}
	switch {
	case matchesPattern(lower, d.config.Gallery.URLPatterns):
		return TypeGallery
	case matchesPattern(lower, d.config.Video.URLPatterns):
		return TypeVideo
	case matchesPattern(lower, d.config.Image.URLPatterns):
		return TypeImage
	}
	return TypeLink
}

func (d *TypeDetector) GetDefaultOpener() string {
	if pc, ok := d.config.Platforms[runtime.GOOS]; ok {
		return pc.DefaultOpener
	}
	if fallback, ok := d.config.Platforms["fallback"]; ok {
		return fallback.DefaultOpener
	}
	return "open"
}

func hasExtension(extensions []string, ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func matchesPattern(u string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}
