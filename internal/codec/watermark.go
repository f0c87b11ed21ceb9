package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	watermarkMargin  = 10
	minWatermarkSize = 12.0
)

// Watermarker renders a fixed text in the bottom-left corner of an image.
type Watermarker struct {
	text string
	font *truetype.Font
}

func NewWatermarker(text string) (*Watermarker, error) {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("codec.NewWatermarker: %w", err)
	}
	return &Watermarker{text: text, font: f}, nil
}

// Apply returns a copy of img with the text drawn at 50% opacity. The font
// size scales with the image width.
func (w *Watermarker) Apply(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	size := float64(b.Dx()) / 30
	if size < minWatermarkSize {
		size = minWatermarkSize
	}

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(w.font)
	c.SetFontSize(size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 128}))

	pt := freetype.Pt(watermarkMargin, b.Dy()-watermarkMargin)
	if _, err := c.DrawString(w.text, pt); err != nil {
		return img
	}
	return dst
}
