// Package imaging normalises uploaded item photos before they are stored.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/leenbank/leenbank/internal/model"
)

// MaxUploadBytes caps the size of an uploaded image.
const MaxUploadBytes = 5 << 20

// Defaults for a zero Processor.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
)

// accepted maps sniffed content types to a short name for error messages.
var accepted = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/gif":  "GIF",
	"image/webp": "WebP",
}

// Image is a re-encoded item photo.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Processor shrinks photos to fit a square of MaxDimension and stores them as
// JPEG.
type Processor struct {
	MaxDimension int
	Quality      int
}

// Process reads an upload, checks its real format from the leading bytes,
// scales it down and re-encodes it. Unsupported or broken input yields a
// *model.ValidationError on the "image" field.
func (p Processor) Process(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return nil, model.Invalid("image", "empty file")
	}
	if len(data) > MaxUploadBytes {
		return nil, model.Invalid("image", "larger than %d MB", MaxUploadBytes>>20)
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	if _, ok := accepted[detected]; !ok {
		return nil, model.Invalid("image", "unsupported format %s, use JPEG, PNG, GIF or WebP", detected)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, model.Invalid("image", "cannot decode %s: %v", accepted[detected], err)
	}

	img := fit(flatten(src), p.maxDimension())

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality()}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}

	b := img.Bounds()
	return &Image{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

func (p Processor) maxDimension() int {
	if p.MaxDimension <= 0 {
		return DefaultMaxDimension
	}
	return p.MaxDimension
}

func (p Processor) quality() int {
	if p.Quality <= 0 || p.Quality > 100 {
		return DefaultQuality
	}
	return p.Quality
}

// flatten paints img onto white so transparent areas do not turn black in JPEG.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// fit scales img down so neither side exceeds limit, keeping the aspect ratio.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	nw, nh := limit, h*limit/w
	if h > w {
		nw, nh = w*limit/h, limit
	}
	nw, nh = atLeastOne(nw), atLeastOne(nh)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
