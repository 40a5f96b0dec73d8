package imaging

import (
	"bytes"
	"fmt"
	"image"

	imgx "github.com/disintegration/imaging"

	// register additional decoders with image.Decode
	_ "golang.org/x/image/webp"
)

// Default transform settings
const (
	DefaultJPEGQuality  = 50
	DefaultMaxDimension = 2048
)

// Transformer converts source image bytes into output image bytes.
// Implementations must be pure: same input, same output, no side effects.
type Transformer interface {
	Transform(src []byte) ([]byte, error)
}

// JPEGTransformer decodes any supported format, shrinks the image to fit
// within MaxDimension on both axes and re-encodes it as JPEG.
type JPEGTransformer struct {
	MaxDimension int
	Quality      int
}

// NewJPEGTransformer returns a JPEGTransformer, falling back to defaults
// for non-positive settings.
func NewJPEGTransformer(maxDimension, quality int) JPEGTransformer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return JPEGTransformer{MaxDimension: maxDimension, Quality: quality}
}

// Transform implements Transformer.
func (t JPEGTransformer) Transform(src []byte) ([]byte, error) {
	img, err := imgx.Decode(bytes.NewReader(src), imgx.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img = t.fit(img)

	var buf bytes.Buffer
	if err := imgx.Encode(&buf, img, imgx.JPEG, imgx.JPEGQuality(t.Quality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// fit never upscales.
func (t JPEGTransformer) fit(img image.Image) image.Image {
	if t.MaxDimension <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= t.MaxDimension && b.Dy() <= t.MaxDimension {
		return img
	}
	return imgx.Fit(img, t.MaxDimension, t.MaxDimension, imgx.Lanczos)
}
