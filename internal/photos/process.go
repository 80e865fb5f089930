package photos

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Rendition is an encoded JPEG and its dimensions.
type Rendition struct {
	Data   []byte
	Width  int
	Height int
}

// Process decodes the upload, honouring EXIF orientation, and produces the
// stored image (longest side at most MaxDimension) and its thumbnail.
func Process(data []byte) (Rendition, Rendition, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Rendition{}, Rendition{}, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	full, err := encode(imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos))
	if err != nil {
		return Rendition{}, Rendition{}, err
	}
	thumb, err := encode(imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos))
	if err != nil {
		return Rendition{}, Rendition{}, err
	}
	return full, thumb, nil
}

func encode(img image.Image) (Rendition, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return Rendition{}, fmt.Errorf("photos: encode: %w", err)
	}
	b := img.Bounds()
	return Rendition{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}
