package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// ErrNoIDs is returned when a delete names no notifications.
var ErrNoIDs = fmt.Errorf("%w: 삭제할 알림 ID가 필요합니다.", httpx.ErrValidation)

// Store is the persistence surface used by the Service.
type Store interface {
	General(ctx context.Context, userID string, now time.Time) ([]Notification, error)
	Tasks(ctx context.Context, userID string, now time.Time) ([]TaskNotification, error)
	GeneralSince(ctx context.Context, userID string, since time.Time) ([]Notification, error)
	TasksSince(ctx context.Context, userID string, since time.Time) ([]TaskNotification, error)
	MarkRead(ctx context.Context, userID string, ids []string, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, userID string, ids []string, now time.Time) (int64, error)
	EmployeesAtLeast(ctx context.Context, minLevel int) ([]string, error)
	Insert(ctx context.Context, rows []NewNotification) ([]Notification, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ Store = (*Repository)(nil)

// Service assembles notification feeds and applies user actions.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the notification service. cache may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewCache(nil, FeedTTL)
	}
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CurrentETag returns the ETag last served to the user, if still fresh.
func (s *Service) CurrentETag(userID string) (string, bool) {
	return s.cache.ETag(userID)
}

// Feed returns the user's merged feed. Each branch is loaded on its own; a
// failing branch is flagged in Errors and contributes no entries.
func (s *Service) Feed(ctx context.Context, userID string) (Feed, error) {
	if feed, ok := s.cache.Get(ctx, userID); ok {
		return feed, nil
	}
	now := s.now()

	var (
		wg              sync.WaitGroup
		general         []Notification
		tasks           []TaskNotification
		genErr, taskErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		general, genErr = s.store.General(ctx, userID, now)
	}()
	go func() {
		defer wg.Done()
		tasks, taskErr = s.store.Tasks(ctx, userID, now)
	}()
	wg.Wait()

	if genErr != nil {
		s.logger.Warn("general notifications unavailable", slog.String("user_id", userID), slog.Any("error", genErr))
		general = nil
	}
	if taskErr != nil {
		s.logger.Warn("task notifications unavailable", slog.String("user_id", userID), slog.Any("error", taskErr))
		tasks = nil
	}

	feed := Merge(general, tasks, now)
	feed.Errors = FeedErrors{Notifications: genErr != nil, TaskNotifications: taskErr != nil}
	if genErr == nil && taskErr == nil {
		if err := s.cache.Put(ctx, userID, feed); err != nil {
			s.logger.Warn("notification cache write failed", slog.Any("error", err))
		}
	}
	return feed, nil
}

// Poll returns entries changed at or after since.
func (s *Service) Poll(ctx context.Context, userID string, since time.Time) (PollResult, error) {
	now := s.now()
	general, err := s.store.GeneralSince(ctx, userID, since)
	if err != nil {
		return PollResult{}, err
	}
	tasks, err := s.store.TasksSince(ctx, userID, since)
	if err != nil {
		return PollResult{}, err
	}
	merged := Merge(general, tasks, now)
	return PollResult{
		Notifications: merged.Notifications,
		HasChanges:    merged.TotalCount > 0,
		UpdateCount:   merged.TotalCount,
	}, nil
}

// MarkRead marks the given notifications read, or all of them when all is set.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string, all bool) (int64, error) {
	if all {
		ids = nil
	} else if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.MarkRead(ctx, userID, ids, s.now())
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// Delete soft-deletes the given notifications for the user.
func (s *Service) Delete(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	n, err := s.store.SoftDelete(ctx, userID, ids, s.now())
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// Create stores an admin notification. A system notice with a target level
// becomes one row per active employee at or above that level.
func (s *Service) Create(ctx context.Context, in CreateInput, actor auth.Principal) ([]Notification, error) {
	if !actor.Allows(auth.LevelAdmin) {
		return nil, httpx.ErrForbidden
	}
	if err := httpx.Validate(in); err != nil {
		return nil, err
	}
	now := s.now()
	base := NewNotification{
		TargetUserID:  in.UserID,
		Title:         in.Title,
		Message:       in.Message,
		Category:      in.Category,
		Priority:      in.Priority,
		RelatedURL:    in.RelatedURL,
		IsSystem:      in.Type == TypeSystemNotice,
		ExpiresAt:     now.Add(30 * 24 * time.Hour),
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
	}
	if base.Priority == "" {
		base.Priority = PriorityMedium
	}
	if base.Category == "" {
		base.Category = in.Type
	}
	if in.ExpiresAt != nil {
		base.ExpiresAt = *in.ExpiresAt
	}

	rows := []NewNotification{base}
	if in.Broadcast() {
		recipients, err := s.store.EmployeesAtLeast(ctx, in.TargetPermissionLevel)
		if err != nil {
			return nil, err
		}
		rows = make([]NewNotification, 0, len(recipients))
		for _, id := range recipients {
			row := base
			row.TargetUserID = id
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return []Notification{}, nil
		}
	}

	created, err := s.store.Insert(ctx, rows)
	if err != nil {
		return nil, httpx.TranslatePg(err)
	}
	s.logger.Info("notifications created",
		slog.String("type", in.Type),
		slog.Int("rows", len(created)),
		slog.String("actor", actor.UserID))

	if base.TargetUserID != "" && !in.Broadcast() {
		s.invalidate(ctx, base.TargetUserID)
	} else if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("notification cache invalidation failed", slog.Any("error", err))
	}
	return created, nil
}

// PurgeExpired removes rows that expired more than a week ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.now().Add(-purgeGrace))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired notifications purged", slog.Int64("rows", n))
	}
	return n, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("notification cache invalidation failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}
