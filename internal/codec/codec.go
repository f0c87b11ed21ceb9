// Package codec decodes originals and re-encodes resized derivatives.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	// Registers the WebP decoder with image.Decode for WebP originals.
	_ "golang.org/x/image/webp"

	"photo-thumbnailer/internal/models"
)

// avifSpeed trades encode time for size; 10 is the fastest setting.
const avifSpeed = 8

type Codec struct {
	watermark *Watermarker
}

// New builds a Codec. A non-empty watermarkText is stamped on every
// derivative.
func New(watermarkText string) (*Codec, error) {
	c := &Codec{}
	if watermarkText != "" {
		wm, err := NewWatermarker(watermarkText)
		if err != nil {
			return nil, err
		}
		c.watermark = wm
	}
	return c, nil
}

// Transform decodes src, resizes it to width keeping the aspect ratio and
// encodes it as format f.
func (c *Codec) Transform(src []byte, width int, f models.Format) ([]byte, error) {
	const op = "codec.Transform"

	if width <= 0 {
		return nil, fmt.Errorf("%s: invalid width %d", op, width)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	var resized image.Image = imaging.Resize(img, width, 0, imaging.Lanczos)
	if c.watermark != nil {
		resized = c.watermark.Apply(resized)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, resized, f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

// Encode writes img to w in format f at the format's quality.
func Encode(w io.Writer, img image.Image, f models.Format) error {
	switch f.Name {
	case models.FormatWebP:
		if err := webp.Encode(w, img, webp.Options{Quality: f.Quality, Method: 4}); err != nil {
			return fmt.Errorf("encode webp: %w", err)
		}
	case models.FormatAVIF:
		if err := avif.Encode(w, img, avif.Options{Quality: f.Quality, QualityAlpha: f.Quality, Speed: avifSpeed}); err != nil {
			return fmt.Errorf("encode avif: %w", err)
		}
	case models.FormatJPEG:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(f.Quality)); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q", f.Name)
	}
	return nil
}
