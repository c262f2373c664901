// Package imagehost normalises user-supplied images and stores them on an
// external host (local disk or an S3-compatible bucket).
package imagehost

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrInvalidImage is returned for payloads that are not a decodable image.
var ErrInvalidImage = errors.New("invalid image payload")

// MaxPixels bounds the declared size of an image accepted for decoding.
const MaxPixels = 40_000_000

// Image is an encoded image ready to upload.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

type format struct {
	ext string
	fmt imaging.Format
}

var formats = map[string]format{
	"image/png":  {".png", imaging.PNG},
	"image/jpeg": {".jpg", imaging.JPEG},
	"image/jpg":  {".jpg", imaging.JPEG},
	"image/gif":  {".gif", imaging.GIF},
}

// ContentTypeForExt maps a file extension to a supported content type.
func ContentTypeForExt(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".gif":
		return "image/gif", true
	}
	return "", false
}

// ContentTypeForFile is ContentTypeForExt applied to a file name.
func ContentTypeForFile(name string) (string, bool) {
	return ContentTypeForExt(filepath.Ext(name))
}

// Decode parses a "data:image/<type>;base64,<payload>" URI and normalises the
// image so that neither side exceeds maxDim.
func Decode(payload string, maxDim int) (Image, error) {
	meta, data, ok := strings.Cut(strings.TrimSpace(payload), ",")
	if !ok || !strings.HasPrefix(meta, "data:") {
		return Image{}, ErrInvalidImage
	}
	meta = strings.TrimPrefix(meta, "data:")
	contentType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return Image{}, ErrInvalidImage
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(data); err != nil {
			return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	return DecodeBytes(raw, contentType, maxDim)
}

// DecodeBytes normalises raw image bytes of the given content type: the image
// is auto-oriented, shrunk to fit maxDim x maxDim and re-encoded.
func DecodeBytes(raw []byte, contentType string, maxDim int) (Image, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	f, ok := formats[contentType]
	if !ok {
		return Image{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, contentType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxPixels/cfg.Height {
		return Image{}, fmt.Errorf("%w: %dx%d is too large", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f.fmt, imaging.JPEGQuality(85)); err != nil {
		return Image{}, err
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	return Image{Data: buf.Bytes(), ContentType: contentType, Ext: f.ext}, nil
}
