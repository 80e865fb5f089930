package photos

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Upload limits and rendition sizes.
const (
	MaxUploadBytes = 10 << 20
	MaxDimension   = 1920
	ThumbnailSize  = 320
	jpegQuality    = 85
)

// Categories group photos by the facility they document.
var Categories = []string{"discharge", "prevention", "basic"}

var (
	// ErrTooLarge is returned for uploads above MaxUploadBytes.
	ErrTooLarge = fmt.Errorf("%w: 파일 크기는 10MB 이하여야 합니다.", httpx.ErrValidation)
	// ErrUnsupportedType is returned for anything but jpeg and png.
	ErrUnsupportedType = fmt.Errorf("%w: JPG 또는 PNG 이미지만 업로드할 수 있습니다.", httpx.ErrValidation)
)

// Photo is a facility_photos row.
type Photo struct {
	ID               string    `json:"id"`
	BusinessID       string    `json:"business_id"`
	Category         string    `json:"category"`
	ObjectName       string    `json:"object_name"`
	ThumbnailName    string    `json:"thumbnail_name"`
	URL              string    `json:"url"`
	ThumbnailURL     string    `json:"thumbnail_url"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedBy       string    `json:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// UploadInput is one file submitted for a business.
type UploadInput struct {
	BusinessID string `validate:"required"`
	Category   string `validate:"required,oneof=discharge prevention basic"`
	Filename   string
	Data       []byte
	UploadedBy string
}

// objectNames returns the full-size and thumbnail object paths.
func objectNames(businessID, category, id string) (string, string) {
	prefix := fmt.Sprintf("businesses/%s/%s/", businessID, category)
	return prefix + id + ".jpg", prefix + "thumbs/" + id + ".jpg"
}

// sniff returns the detected content type when it is an accepted image type.
func sniff(data []byte) (string, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png":
		return ct, nil
	}
	return "", ErrUnsupportedType
}
