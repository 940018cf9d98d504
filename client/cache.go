package client

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go-notify/internal/notify"
)

// Local bus events emitted by the cache so UI consumers observe one source.
const (
	EventCacheUpdated = "cache:updated"
	EventConnState    = "conn:state"
)

// Cache is the client-local copy of the user's delivery records and unread
// count. It is the thing the reconciler mutates optimistically and the thing
// a resync overwrites wholesale.
type Cache struct {
	mu      sync.Mutex
	records map[int64]notify.Item
	unread  int
	bus     *Bus
}

func NewCache(bus *Bus) *Cache {
	return &Cache{records: make(map[int64]notify.Item), bus: bus}
}

// ApplyNew inserts an inbound record. Duplicate delivery of the same record
// id is a no-op, which is what makes redelivered frames harmless.
func (c *Cache) ApplyNew(item notify.Item) {
	c.mu.Lock()
	if _, ok := c.records[item.ID]; ok {
		c.mu.Unlock()
		return
	}
	c.records[item.ID] = item
	if !item.Read {
		c.unread++
	}
	c.mu.Unlock()
	c.changed()
}

// ApplyRead flips a record to read and reports whether anything changed.
func (c *Cache) ApplyRead(id int64) bool {
	c.mu.Lock()
	item, ok := c.records[id]
	if !ok || item.Read {
		c.mu.Unlock()
		return false
	}
	now := time.Now()
	item.Read = true
	item.ReadAt = &now
	c.records[id] = item
	if c.unread > 0 {
		c.unread--
	}
	c.mu.Unlock()
	c.changed()
	return true
}

// ApplyUnread reverts a record to unread (reconciliation rollback).
func (c *Cache) ApplyUnread(id int64) {
	c.mu.Lock()
	item, ok := c.records[id]
	if !ok || !item.Read {
		c.mu.Unlock()
		return
	}
	item.Read = false
	item.ReadAt = nil
	c.records[id] = item
	c.unread++
	c.mu.Unlock()
	c.changed()
}

// UnreadIDs returns the ids of every currently-unread record.
func (c *Cache) UnreadIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, c.unread)
	for id, item := range c.records {
		if !item.Read {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Cache) Get(id int64) (notify.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.records[id]
	return item, ok
}

// Items returns the records ordered by content creation time, id as
// tie-break: creation order, never wire arrival order.
func (c *Cache) Items() []notify.Item {
	c.mu.Lock()
	items := make([]notify.Item, 0, len(c.records))
	for _, item := range c.records {
		items = append(items, item)
	}
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Content, items[j].Content
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items
}

func (c *Cache) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// SetUnreadCount adopts the authoritative count pushed by the server.
func (c *Cache) SetUnreadCount(n int) {
	c.mu.Lock()
	if n < 0 {
		n = 0
	}
	c.unread = n
	c.mu.Unlock()
	c.changed()
}

// Reset replaces the whole cache with server state (reconnect resync).
func (c *Cache) Reset(items []notify.Item, unread int) {
	c.mu.Lock()
	c.records = make(map[int64]notify.Item, len(items))
	for _, item := range items {
		c.records[item.ID] = item
	}
	if unread < 0 {
		unread = 0
	}
	c.unread = unread
	c.mu.Unlock()
	c.changed()
}

func (c *Cache) changed() {
	if c.bus == nil {
		return
	}
	payload, _ := json.Marshal(notify.CountPayload{Count: c.Unread()})
	c.bus.Publish(EventCacheUpdated, payload)
}
