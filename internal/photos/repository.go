package photos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

const photoColumns = `id::text, business_id::text, category, object_name, thumbnail_name,
	COALESCE(original_filename, ''), content_type, width, height, size_bytes,
	COALESCE(uploaded_by::text, ''), created_at`

// Repository persists facility_photos rows.
type Repository struct {
	db db.Querier
}

// NewRepository constructs the repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

func scanPhoto(row pgx.Row) (Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.BusinessID, &p.Category, &p.ObjectName, &p.ThumbnailName,
		&p.OriginalFilename, &p.ContentType, &p.Width, &p.Height, &p.SizeBytes,
		&p.UploadedBy, &p.CreatedAt)
	return p, err
}

// Insert stores the photo row and returns it with server defaults applied.
func (r *Repository) Insert(ctx context.Context, p Photo) (Photo, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO facility_photos
			(id, business_id, category, object_name, thumbnail_name, original_filename,
			 content_type, width, height, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, '')::uuid)
		RETURNING `+photoColumns,
		p.ID, p.BusinessID, p.Category, p.ObjectName, p.ThumbnailName, p.OriginalFilename,
		p.ContentType, p.Width, p.Height, p.SizeBytes, p.UploadedBy)
	saved, err := scanPhoto(row)
	if err != nil {
		return Photo{}, fmt.Errorf("photos: insert: %w", httpx.TranslatePg(err))
	}
	return saved, nil
}

// List returns a business's photos, newest first, optionally for one category.
func (r *Repository) List(ctx context.Context, businessID, category string) ([]Photo, error) {
	rows, err := r.db.Query(ctx, `SELECT `+photoColumns+` FROM facility_photos
		WHERE business_id::text = $1 AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC`, businessID, category)
	if err != nil {
		return nil, fmt.Errorf("photos: list: %w", err)
	}
	defer rows.Close()
	out := []Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("photos: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one photo of a business.
func (r *Repository) Get(ctx context.Context, businessID, id string) (Photo, error) {
	p, err := scanPhoto(r.db.QueryRow(ctx, `SELECT `+photoColumns+` FROM facility_photos
		WHERE business_id::text = $1 AND id::text = $2`, businessID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Photo{}, fmt.Errorf("photo %s: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return Photo{}, fmt.Errorf("photos: get: %w", err)
	}
	return p, nil
}

// Delete removes the photo row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM facility_photos WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("photos: delete: %w", err)
	}
	return nil
}
