package photos

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Store is the metadata surface used by the Service.
type Store interface {
	Insert(ctx context.Context, p Photo) (Photo, error)
	List(ctx context.Context, businessID, category string) ([]Photo, error)
	Get(ctx context.Context, businessID, id string) (Photo, error)
	Delete(ctx context.Context, id string) error
}

var _ Store = (*Repository)(nil)

// BusinessLookup confirms that a business exists.
type BusinessLookup interface {
	Get(ctx context.Context, id string) (business.Record, error)
}

// Service uploads, lists and deletes facility photos.
type Service struct {
	businesses BusinessLookup
	store      Store
	objects    ObjectStore
	logger     *slog.Logger
	newID      func() string
}

// NewService wires the photo service.
func NewService(businesses BusinessLookup, store Store, objects ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		businesses: businesses,
		store:      store,
		objects:    objects,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Upload resizes the image, stores both renditions and records the row. The
// objects are removed again when the row cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Photo, error) {
	if err := httpx.Validate(in); err != nil {
		return Photo{}, err
	}
	if len(in.Data) > MaxUploadBytes {
		return Photo{}, ErrTooLarge
	}
	if _, err := sniff(in.Data); err != nil {
		return Photo{}, err
	}
	if _, err := s.businesses.Get(ctx, in.BusinessID); err != nil {
		return Photo{}, err
	}

	full, thumb, err := Process(in.Data)
	if err != nil {
		return Photo{}, err
	}

	id := s.newID()
	objectName, thumbName := objectNames(in.BusinessID, in.Category, id)
	if err := s.objects.Put(ctx, objectName, "image/jpeg", full.Data); err != nil {
		return Photo{}, err
	}
	if err := s.objects.Put(ctx, thumbName, "image/jpeg", thumb.Data); err != nil {
		s.cleanup(ctx, objectName)
		return Photo{}, err
	}

	saved, err := s.store.Insert(ctx, Photo{
		ID:               id,
		BusinessID:       in.BusinessID,
		Category:         in.Category,
		ObjectName:       objectName,
		ThumbnailName:    thumbName,
		OriginalFilename: in.Filename,
		ContentType:      "image/jpeg",
		Width:            full.Width,
		Height:           full.Height,
		SizeBytes:        int64(len(full.Data)),
		UploadedBy:       in.UploadedBy,
	})
	if err != nil {
		s.cleanup(ctx, objectName, thumbName)
		return Photo{}, err
	}
	s.logger.Info("facility photo uploaded",
		slog.String("business_id", in.BusinessID),
		slog.String("category", in.Category),
		slog.String("object", objectName),
		slog.Int("original_bytes", len(in.Data)),
		slog.Int("stored_bytes", len(full.Data)))
	return s.withURLs(saved), nil
}

// List returns the photos of a business.
func (s *Service) List(ctx context.Context, businessID, category string) ([]Photo, error) {
	photos, err := s.store.List(ctx, businessID, category)
	if err != nil {
		return nil, err
	}
	for i := range photos {
		photos[i] = s.withURLs(photos[i])
	}
	return photos, nil
}

// Delete removes both objects and then the row.
func (s *Service) Delete(ctx context.Context, businessID, id string) error {
	p, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return err
	}
	for _, name := range []string{p.ObjectName, p.ThumbnailName} {
		if err := s.objects.Delete(ctx, name); err != nil {
			return fmt.Errorf("photos: delete objects: %w", err)
		}
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) withURLs(p Photo) Photo {
	p.URL = s.objects.URL(p.ObjectName)
	p.ThumbnailURL = s.objects.URL(p.ThumbnailName)
	return p
}

func (s *Service) cleanup(ctx context.Context, names ...string) {
	for _, name := range names {
		if err := s.objects.Delete(ctx, name); err != nil {
			s.logger.Warn("orphaned photo object", slog.String("object", name), slog.Any("error", err))
		}
	}
}
