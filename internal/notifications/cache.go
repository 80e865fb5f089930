package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// FeedTTL bounds how long a user's feed is served from cache.
	FeedTTL = 30 * time.Second

	generationKey       = "notifications:generation"
	invalidationChannel = "notifications.invalidate"
	// allUsers is published when every user's feed must be dropped.
	allUsers = "*"
)

type memoEntry struct {
	etag    string
	expires time.Time
}

// Cache keeps per-user feeds in Redis and remembers the ETag last served to
// each user in process, so conditional requests skip Redis entirely.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	now     func() time.Time
	observe func(result string)

	mu   sync.Mutex
	memo map[string]memoEntry
}

// NewCache constructs the feed cache. A nil client keeps only the ETag memo.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = FeedTTL
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		observe: func(string) {},
		memo:    make(map[string]memoEntry),
	}
}

// WithObserver registers a hit/miss/error callback.
func (c *Cache) WithObserver(observe func(result string)) *Cache {
	if observe != nil {
		c.observe = observe
	}
	return c
}

func (c *Cache) key(ctx context.Context, userID string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("notifications:%d:%s", gen, userID), nil
}

// ETag returns the tag last served to the user while it is fresh.
func (c *Cache) ETag(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.memo[userID]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expires) {
		delete(c.memo, userID)
		return "", false
	}
	return entry.etag, true
}

func (c *Cache) remember(userID, etag string) {
	c.mu.Lock()
	c.memo[userID] = memoEntry{etag: etag, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) forget(userID string) {
	c.mu.Lock()
	if userID == allUsers {
		clear(c.memo)
	} else {
		delete(c.memo, userID)
	}
	c.mu.Unlock()
}

// Get returns the cached feed for the user.
func (c *Cache) Get(ctx context.Context, userID string) (Feed, bool) {
	if c.client == nil {
		return Feed{}, false
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		c.observe("error")
		return Feed{}, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.observe("miss")
		} else {
			c.observe("error")
		}
		return Feed{}, false
	}
	var feed Feed
	if err := json.Unmarshal(raw, &feed); err != nil {
		c.observe("error")
		return Feed{}, false
	}
	c.observe("hit")
	c.remember(userID, feed.ETag())
	return feed, true
}

// Put stores the feed and remembers its ETag.
func (c *Cache) Put(ctx context.Context, userID string, feed Feed) error {
	c.remember(userID, feed.ETag())
	if c.client == nil {
		return nil
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(feed)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops the user's feed here and on every listening instance.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	c.forget(userID)
	if c.client == nil {
		return nil
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, invalidationChannel, userID).Err()
}

// InvalidateAll orphans every cached feed by advancing the generation.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.forget(allUsers)
	if c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, invalidationChannel, allUsers).Err()
}

// Listen drops local ETags named on the invalidation channel until ctx is
// cancelled.
func (c *Cache) Listen(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, invalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.forget(msg.Payload)
			}
		}
	}()
	return nil
}
