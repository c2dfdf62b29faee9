package variant

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Config holds the variant sizing and encoding policy. The values are
// policy, not contract; the only hard requirement is determinism, so the
// derivation stays idempotent under redelivery.
type Config struct {
	ThumbnailSize    int
	ThumbnailQuality int
	MediumBound      int
	MediumQuality    int
}

func DefaultConfig() Config {
	return Config{
		ThumbnailSize:    200,
		ThumbnailQuality: 80,
		MediumBound:      800,
		MediumQuality:    85,
	}
}

// Variants are the two derived renditions, always encoded as JPEG.
type Variants struct {
	Thumbnail []byte
	Medium    []byte
}

const ContentType = "image/jpeg"

// Derive decodes the original and computes both renditions:
// the thumbnail is forced to an exact square (aspect ratio not preserved),
// the medium fits inside the bound preserving aspect ratio and is never
// upscaled. A decode failure means the bytes are corrupt or unsupported;
// retrying cannot help.
func Derive(original []byte, cfg Config) (Variants, error) {
	img, err := imaging.Decode(bytes.NewReader(original))
	if err != nil {
		return Variants{}, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Resize(img, cfg.ThumbnailSize, cfg.ThumbnailSize, imaging.Lanczos)
	medium := fitInside(img, cfg.MediumBound)

	thumbBytes, err := encodeJPEG(thumb, cfg.ThumbnailQuality)
	if err != nil {
		return Variants{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	mediumBytes, err := encodeJPEG(medium, cfg.MediumQuality)
	if err != nil {
		return Variants{}, fmt.Errorf("encode medium: %w", err)
	}

	return Variants{Thumbnail: thumbBytes, Medium: mediumBytes}, nil
}

func fitInside(img image.Image, bound int) image.Image {
	b := img.Bounds()
	if b.Dx() <= bound && b.Dy() <= bound {
		return img
	}
	return imaging.Fit(img, bound, bound, imaging.Lanczos)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
