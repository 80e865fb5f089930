package notifications

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Priority ranks general notifications.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TypeSystemNotice fans out to every active employee at or above a level.
const TypeSystemNotice = "system_notice"

const (
	generalLimit = 50
	taskLimit    = 30
	// taskDefaultExpiry applies to task notifications stored without expiry.
	taskDefaultExpiry = 7 * 24 * time.Hour
	// purgeGrace is how long expired rows are kept before the purge job removes them.
	purgeGrace = 7 * 24 * time.Hour
)

// Notification is one entry of the merged feed.
type Notification struct {
	ID                   string         `json:"id"`
	Title                string         `json:"title"`
	Message              string         `json:"message"`
	Category             string         `json:"category"`
	Priority             Priority       `json:"priority"`
	CreatedAt            time.Time      `json:"created_at"`
	ExpiresAt            *time.Time     `json:"expires_at,omitempty"`
	IsRead               bool           `json:"is_read"`
	IsSystemNotification bool           `json:"is_system_notification"`
	RelatedResourceType  string         `json:"related_resource_type,omitempty"`
	RelatedResourceID    string         `json:"related_resource_id,omitempty"`
	RelatedURL           string         `json:"related_url,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedByName        string         `json:"created_by_name,omitempty"`
}

// TaskNotification is a task_notifications row.
type TaskNotification struct {
	ID               string
	UserID           string
	TaskID           string
	BusinessName     string
	Message          string
	NotificationType string
	Priority         string
	IsRead           bool
	CreatedAt        time.Time
	ExpiresAt        *time.Time
}

var taskCategories = map[string]string{
	"assignment":    "task_assigned",
	"status_change": "task_status_changed",
	"completion":    "task_completed",
	"creation":      "task_created",
	"update":        "task_updated",
	"reminder":      "task_assigned",
	"deadline":      "task_assigned",
}

// TaskCategory maps a task notification type onto a feed category.
func TaskCategory(notificationType string) string {
	if c, ok := taskCategories[notificationType]; ok {
		return c
	}
	return "task_assigned"
}

// TaskPriority maps task priorities onto feed priorities.
func TaskPriority(p string) Priority {
	switch p {
	case "urgent":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Notification converts the task row into a feed entry.
func (t TaskNotification) Notification(now time.Time) Notification {
	expires := now.Add(taskDefaultExpiry)
	if t.ExpiresAt != nil {
		expires = *t.ExpiresAt
	}
	return Notification{
		ID:                  t.ID,
		Title:               "업무 알림",
		Message:             t.Message,
		Category:            TaskCategory(t.NotificationType),
		Priority:            TaskPriority(t.Priority),
		CreatedAt:           t.CreatedAt,
		ExpiresAt:           &expires,
		IsRead:              t.IsRead,
		RelatedResourceType: "task",
		RelatedResourceID:   t.TaskID,
		RelatedURL:          "/admin/tasks?focus=" + t.TaskID,
		Metadata: map[string]any{
			"business_name":     t.BusinessName,
			"notification_type": t.NotificationType,
			"source":            "task_system",
		},
		CreatedByName: "System",
	}
}

// PriorityStats counts unread entries per priority.
type PriorityStats struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// FeedErrors flags the branches that failed while the rest of the feed loaded.
type FeedErrors struct {
	Notifications     bool `json:"notifications"`
	TaskNotifications bool `json:"taskNotifications"`
}

// Feed is the merged notification response.
type Feed struct {
	Notifications           []Notification `json:"notifications"`
	UnreadCount             int            `json:"unreadCount"`
	TotalCount              int            `json:"totalCount"`
	PriorityStats           PriorityStats  `json:"priorityStats"`
	LastFetched             time.Time      `json:"lastFetched"`
	HasGeneralNotifications bool           `json:"hasGeneralNotifications"`
	HasTaskNotifications    bool           `json:"hasTaskNotifications"`
	Errors                  FeedErrors     `json:"errors"`
}

// Merge orders general and converted task notifications newest first and
// derives the counters.
func Merge(general []Notification, tasks []TaskNotification, now time.Time) Feed {
	all := make([]Notification, 0, len(general)+len(tasks))
	all = append(all, general...)
	for _, t := range tasks {
		all = append(all, t.Notification(now))
	}
	slices.SortStableFunc(all, func(a, b Notification) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	feed := Feed{
		Notifications:           all,
		TotalCount:              len(all),
		LastFetched:             now,
		HasGeneralNotifications: len(general) > 0,
		HasTaskNotifications:    len(tasks) > 0,
	}
	for _, n := range all {
		if n.IsRead {
			continue
		}
		feed.UnreadCount++
		switch n.Priority {
		case PriorityCritical:
			feed.PriorityStats.Critical++
		case PriorityHigh:
			feed.PriorityStats.High++
		case PriorityMedium:
			feed.PriorityStats.Medium++
		case PriorityLow:
			feed.PriorityStats.Low++
		}
	}
	return feed
}

// ETag fingerprints the feed by its totals and the id and read state of every
// entry on the page.
func (f Feed) ETag() string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.Itoa(f.TotalCount) + "/" + strconv.Itoa(f.UnreadCount))
	for _, n := range f.Notifications {
		read := "0"
		if n.IsRead {
			read = "1"
		}
		_, _ = h.WriteString("|" + n.ID + ":" + read + ":" + strconv.FormatInt(n.CreatedAt.UnixMilli(), 10))
	}
	return `"` + strconv.FormatUint(h.Sum64(), 36) + `"`
}

// PollResult lists entries changed since the client's last fetch.
type PollResult struct {
	Notifications []Notification `json:"notifications"`
	HasChanges    bool           `json:"hasChanges"`
	UpdateCount   int            `json:"updateCount"`
}

// CreateInput is the admin create payload.
type CreateInput struct {
	UserID                string     `json:"user_id"`
	Type                  string     `json:"type" validate:"required"`
	Title                 string     `json:"title" validate:"required"`
	Message               string     `json:"message" validate:"required"`
	Category              string     `json:"category"`
	Priority              Priority   `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	RelatedURL            string     `json:"related_url"`
	TargetPermissionLevel int        `json:"target_permission_level" validate:"omitempty,min=1,max=4"`
	ExpiresAt             *time.Time `json:"expires_at"`
}

// Broadcast reports whether the input fans out to a permission tier.
func (in CreateInput) Broadcast() bool {
	return in.Type == TypeSystemNotice && in.TargetPermissionLevel > 0
}

// NewNotification is one row to insert.
type NewNotification struct {
	TargetUserID  string
	Title         string
	Message       string
	Category      string
	Priority      Priority
	RelatedURL    string
	IsSystem      bool
	ExpiresAt     time.Time
	CreatedBy     string
	CreatedByName string
}
