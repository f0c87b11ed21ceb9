package models

import (
	"fmt"
	"path"
	"strings"
)

// Size is a named target pixel width.
type Size struct {
	Name  string `yaml:"name"`
	Width int    `yaml:"width"`
}

// Format is a target encoding with its quality setting.
type Format struct {
	Name        string `yaml:"name"`
	Ext         string `yaml:"ext"`
	ContentType string `yaml:"content_type"`
	Quality     int    `yaml:"quality"`
}

const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatJPEG = "jpeg"
)

func DefaultSizes() []Size {
	return []Size{
		{Name: "small", Width: 360},
		{Name: "medium", Width: 800},
		{Name: "large", Width: 1200},
	}
}

func DefaultFormats() []Format {
	webp, _ := FormatByName(FormatWebP)
	avif, _ := FormatByName(FormatAVIF)
	return []Format{webp, avif}
}

// FormatByName returns the known format with its default quality.
func FormatByName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatWebP:
		return Format{Name: FormatWebP, Ext: "webp", ContentType: "image/webp", Quality: 80}, nil
	case FormatAVIF:
		return Format{Name: FormatAVIF, Ext: "avif", ContentType: "image/avif", Quality: 50}, nil
	case FormatJPEG, "jpg":
		return Format{Name: FormatJPEG, Ext: "jpg", ContentType: "image/jpeg", Quality: 80}, nil
	default:
		return Format{}, fmt.Errorf("unknown format %q", name)
	}
}

// NormalizePath strips leading slashes. No other cleanup is applied.
func NormalizePath(p string) string {
	return strings.TrimLeft(p, "/")
}

// DerivedKey returns {size}/{path without extension}.{ext} for the
// normalized path.
func DerivedKey(size Size, format Format, p string) string {
	p = NormalizePath(p)
	stem := strings.TrimSuffix(p, path.Ext(p))
	return size.Name + "/" + stem + "." + format.Ext
}

// ExpectedPaths returns the deterministic key of every configured pair.
func ExpectedPaths(sizes []Size, formats []Format, p string) GeneratedPaths {
	gp := NewGeneratedPaths(sizes, formats)
	for _, s := range sizes {
		for _, f := range formats {
			gp.Set(s.Name, f.Name, DerivedKey(s, f, p))
		}
	}
	return gp
}
