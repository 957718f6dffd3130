// Package evidence prepares time-out photos for upload and keeps them in a
// durable outbox until the reconciler has delivered them.
package evidence

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/balkashynov/dtr/internal/apperr"
)

const (
	ContentTypeJPEG = "image/jpeg"

	DefaultMaxDimension = 1024
	DefaultQuality      = 70
)

// Payload is an encoded photo ready to be stored or uploaded
type Payload struct {
	ContentType string
	Data        []byte
}

// DataURL renders the payload as an inline data: URL
func (p *Payload) DataURL() string {
	return "data:" + p.ContentType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// IsDataURL reports whether s is an inline data: URL
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// IsDurableURL reports whether s points at an uploaded object
func IsDurableURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// ParseDataURL decodes a base64 data: URL
func ParseDataURL(s string) (*Payload, error) {
	if !IsDataURL(s) {
		return nil, fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode data URL: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Payload{ContentType: contentType, Data: raw}, nil
}

// Encoder downsizes captured photos and re-encodes them as JPEG
type Encoder struct {
	MaxDimension int
	Quality      int
}

// NewEncoder returns an Encoder, using defaults for non-positive values
func NewEncoder(maxDimension, quality int) *Encoder {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{MaxDimension: maxDimension, Quality: quality}
}

// Encode accepts PNG, JPEG or WebP bytes, or a data: URL carrying them
func (e *Encoder) Encode(raw []byte) (*Payload, error) {
	if len(raw) == 0 {
		return nil, apperr.ErrEvidenceUnavailable
	}
	if IsDataURL(string(raw)) {
		p, err := ParseDataURL(string(raw))
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeEvidenceUnavailable, "read photo", err)
		}
		raw = p.Data
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEvidenceUnavailable, "decode photo", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, e.scale(src), &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, apperr.Wrap(apperr.CodeEvidenceUnavailable, "encode photo", err)
	}
	return &Payload{ContentType: ContentTypeJPEG, Data: buf.Bytes()}, nil
}

func (e *Encoder) scale(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if e.MaxDimension <= 0 || longest <= e.MaxDimension {
		return src
	}

	ratio := float64(e.MaxDimension) / float64(longest)
	dw := max(1, int(float64(w)*ratio+0.5))
	dh := max(1, int(float64(h)*ratio+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
