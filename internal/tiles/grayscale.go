package tiles

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
)

// Weights are the luminance quotas applied to the red, green and blue
// channels. The sum of the three plus DividerTune is the divisor.
type Weights struct {
	Red         int `toml:"red" yaml:"red" validate:"gte=0"`
	Green       int `toml:"green" yaml:"green" validate:"gte=0"`
	Blue        int `toml:"blue" yaml:"blue" validate:"gte=0"`
	DividerTune int `toml:"divider_tune" yaml:"divider_tune"`
}

func DefaultWeights() Weights {
	return Weights{Red: 21, Green: 71, Blue: 8}
}

func (w Weights) Divider() int {
	return w.Red + w.Green + w.Blue + w.DividerTune
}

func (w Weights) IsZero() bool {
	return w == Weights{}
}

func (w Weights) Validate() error {
	if w.Red < 0 || w.Green < 0 || w.Blue < 0 {
		return errors.New("grayscale weights must not be negative")
	}
	if w.Divider() <= 0 {
		return errors.New("grayscale divider must be positive")
	}
	return nil
}

// Luma maps one 8-bit RGB triple to its gray level.
func (w Weights) Luma(r, g, b uint8) uint8 {
	v := (w.Red*int(r) + w.Green*int(g) + w.Blue*int(b)) / w.Divider()
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

// Grayscale returns a copy of img where every pixel's R, G and B are set to
// the weighted luminance. Alpha is kept.
func Grayscale(img image.Image, w Weights) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	pix := out.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		// Pix is alpha-premultiplied, so gray can never exceed alpha.
		gray := w.Luma(pix[i], pix[i+1], pix[i+2])
		if gray > pix[i+3] {
			gray = pix[i+3]
		}
		pix[i], pix[i+1], pix[i+2] = gray, gray, gray
	}
	return out
}

// GrayscalePNG decodes a PNG or JPEG tile and re-encodes it as a grayscale
// PNG.
func GrayscalePNG(data []byte, w Weights) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Grayscale(img, w)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURI renders an encoded PNG as an image source attribute value.
func DataURI(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
