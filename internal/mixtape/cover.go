package mixtape

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"image/color"
	"image/draw"
	"strings"

	"github.com/disintegration/imaging"
)

// processCoverDataURL decodes a "data:<mime>;base64,<payload>" cover image,
// composites any transparency onto a white background (RGBA/LA/palette
// sources may carry an alpha channel a plain JPEG re-encode would otherwise
// turn black), resizes to maxWidth preserving aspect ratio via Lanczos
// resampling when the source is wider, and returns JPEG-encoded bytes at
// quality 95. Grounded on mixtape_manager.py's _process_cover/_cover_resize.
func processCoverDataURL(dataURL string, maxWidth int) ([]byte, error) {
	_, encoded, err := splitDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cover base64: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode cover image: %w", err)
	}

	flattened := compositeOnWhite(img)

	if maxWidth > 0 && flattened.Bounds().Dx() > maxWidth {
		flattened = imaging.Resize(flattened, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flattened, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode cover jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func splitDataURL(s string) (mime, encoded string, err error) {
	if !strings.HasPrefix(s, "data:") {
		return "", "", fmt.Errorf("not a data URL")
	}
	idx := strings.Index(s, ",")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed data URL: missing comma")
	}
	header := s[len("data:"):idx]
	return strings.TrimSuffix(header, ";base64"), s[idx+1:], nil
}

func compositeOnWhite(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
