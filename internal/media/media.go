// Package media prepares user uploads (crop photos, notes, PDFs) for a model
// request.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

var (
	// ErrUnsupportedMedia is returned for content that is neither an image,
	// a PDF nor plain text.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrTooLarge is returned when content exceeds Options.MaxBytes.
	ErrTooLarge = errors.New("attachment exceeds size limit")

	// ErrEmpty is returned for zero-length content.
	ErrEmpty = errors.New("attachment is empty")
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWEBP = "image/webp"
	MIMEPDF  = "application/pdf"
	MIMEText = "text/plain"
)

// Options bounds attachment preparation.
type Options struct {
	MaxBytes          int64 `mapstructure:"max_bytes"`
	MaxImageDimension int   `mapstructure:"max_image_dimension"`
	JPEGQuality       int   `mapstructure:"jpeg_quality"`
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxBytes:          10 << 20,
		MaxImageDimension: 1024,
		JPEGQuality:       85,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxBytes <= 0 {
		o.MaxBytes = def.MaxBytes
	}
	if o.MaxImageDimension <= 0 {
		o.MaxImageDimension = def.MaxImageDimension
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		o.JPEGQuality = def.JPEGQuality
	}
	return o
}

// Attachment is content ready to be sent inline with a prompt.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Size returns the payload length in bytes.
func (a Attachment) Size() int {
	return len(a.Data)
}

// PrepareFile reads path and prepares it.
func PrepareFile(path string, opts Options) (Attachment, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > opts.MaxBytes {
		return Attachment{}, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), opts.MaxBytes)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-provided upload
	if err != nil {
		return Attachment{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Prepare(filepath.Base(path), data, opts)
}

// Prepare sniffs the content type of data and normalizes it. Images larger
// than MaxImageDimension on either side are downscaled; every image that is
// not already a small JPEG is re-encoded as JPEG. PDFs and text pass through.
func Prepare(name string, data []byte, opts Options) (Attachment, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return Attachment{}, ErrEmpty
	}
	if int64(len(data)) > opts.MaxBytes {
		return Attachment{}, fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, len(data), opts.MaxBytes)
	}

	mimeType := Detect(name, data)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return prepareImage(name, mimeType, data, opts)
	case mimeType == MIMEPDF, mimeType == MIMEText:
		return Attachment{Name: name, MIMEType: mimeType, Data: data}, nil
	default:
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
}

// Detect returns the media type of data without parameters.
func Detect(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	mediaType, _, err := mime.ParseMediaType(sniffed)
	if err != nil {
		mediaType = sniffed
	}

	if mediaType == "application/octet-stream" || mediaType == MIMEText {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md", ".csv", ".text":
			if utf8.Valid(data) {
				return MIMEText
			}
		}
	}
	return mediaType
}

func prepareImage(name, mimeType string, data []byte, opts Options) (Attachment, error) {
	switch mimeType {
	case MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWEBP:
	default:
		return Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Attachment{}, fmt.Errorf("decode %s: %w", mimeType, err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return Attachment{}, errors.New("invalid image dimensions")
	}

	newW, newH := fit(width, height, opts.MaxImageDimension)
	if mimeType == MIMEJPEG && newW == width && newH == height {
		return Attachment{Name: name, MIMEType: MIMEJPEG, Data: data, Width: width, Height: height}, nil
	}

	// JPEG has no alpha channel; flatten onto white.
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return Attachment{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return Attachment{
		Name:     jpegName(name),
		MIMEType: MIMEJPEG,
		Data:     buf.Bytes(),
		Width:    newW,
		Height:   newH,
	}, nil
}

// fit scales (w, h) so the longer side is at most limit, keeping aspect ratio.
func fit(w, h, limit int) (int, int) {
	longest := max(w, h)
	if limit <= 0 || longest <= limit {
		return w, h
	}
	scale := float64(limit) / float64(longest)
	newW := max(1, int(float64(w)*scale+0.5))
	newH := max(1, int(float64(h)*scale+0.5))
	return newW, newH
}

func jpegName(name string) string {
	if name == "" {
		return ""
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".jpg"
}
