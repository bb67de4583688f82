// Package imaging shrinks captured screenshots before upload.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"regexp"

	"golang.org/x/image/draw"
)

// DefaultMaxWidth is the upload width cap.
const DefaultMaxWidth = 640

// ErrDecode indicates the captured image could not be decoded.
var ErrDecode = errors.New("image decode error")

var dataURIPrefix = regexp.MustCompile(`^data:image/(png|jpeg);base64,`)

// Reducer downsizes base64 images to a maximum width.
type Reducer struct {
	maxWidth int
	encoder  png.Encoder
}

// NewReducer returns a Reducer capped at maxWidth pixels. Non-positive values
// fall back to DefaultMaxWidth.
func NewReducer(maxWidth int) *Reducer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Reducer{
		maxWidth: maxWidth,
		encoder:  png.Encoder{CompressionLevel: png.BestCompression},
	}
}

// Reduce decodes a base64 PNG or JPEG (with or without a data-URI prefix),
// scales it to the configured width and returns raw base64 PNG. Images that
// are already narrower than the cap are re-encoded at their original size.
func (r *Reducer) Reduce(ctx context.Context, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(dataURIPrefix.ReplaceAllString(encoded, ""))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	out := scale(src, r.maxWidth)

	buf := &bytes.Buffer{}
	if err := r.encoder.Encode(buf, out); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func scale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if b.Dx() <= maxWidth {
		return src
	}

	factor := float64(maxWidth) / float64(b.Dx())
	height := int(float64(b.Dy()) * factor)
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
