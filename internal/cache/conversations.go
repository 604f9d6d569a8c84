// Package cache bounds the in-memory per-chat conversation state. Chats
// come and go; without a bound the state of every chat ever seen stays
// resident for the life of the process.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Conversations is an LRU of per-chat values with a size bound and an age
// bound. Eviction runs on access, there is no background sweeper.
type Conversations[V any] struct {
	mu      sync.Mutex
	maxSize int
	maxAge  time.Duration
	order   *list.List // front = most recent
	byChat  map[int64]*list.Element

	// OnEvict, when set, runs for each evicted value. It is called with
	// the cache lock held and must not call back into the cache.
	OnEvict func(chatID int64, value V)

	now func() time.Time // overridden in tests
}

type entry[V any] struct {
	chatID   int64
	value    V
	lastUsed time.Time
}

// NewConversations creates a cache holding at most maxSize conversations,
// each for at most maxAge since last use. Zero disables the respective
// bound.
func NewConversations[V any](maxSize int, maxAge time.Duration) *Conversations[V] {
	return &Conversations[V]{
		maxSize: maxSize,
		maxAge:  maxAge,
		order:   list.New(),
		byChat:  make(map[int64]*list.Element),
		now:     time.Now,
	}
}

// Get returns the value for a chat and marks it recently used.
func (c *Conversations[V]) Get(chatID int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()

	el, ok := c.byChat[chatID]
	if !ok {
		var zero V
		return zero, false
	}
	ent := el.Value.(*entry[V])
	ent.lastUsed = c.now()
	c.order.MoveToFront(el)
	return ent.value, true
}

// Put stores the value for a chat, evicting the least recently used entry
// if the size bound is exceeded.
func (c *Conversations[V]) Put(chatID int64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()

	if el, ok := c.byChat[chatID]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.lastUsed = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{chatID: chatID, value: value, lastUsed: c.now()})
	c.byChat[chatID] = el

	if c.maxSize > 0 {
		for c.order.Len() > c.maxSize {
			c.evictLocked(c.order.Back())
		}
	}
}

// Delete removes a chat's entry without running OnEvict.
func (c *Conversations[V]) Delete(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byChat[chatID]; ok {
		c.order.Remove(el)
		delete(c.byChat, chatID)
	}
}

// Len reports the number of live entries after expiring stale ones.
func (c *Conversations[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.order.Len()
}

// Clear removes all entries, running OnEvict for each.
func (c *Conversations[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.evictLocked(c.order.Back())
	}
}

func (c *Conversations[V]) expireLocked() {
	if c.maxAge <= 0 {
		return
	}
	cutoff := c.now().Add(-c.maxAge)
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		if el.Value.(*entry[V]).lastUsed.After(cutoff) {
			break
		}
		c.evictLocked(el)
	}
}

func (c *Conversations[V]) evictLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.byChat, ent.chatID)
	if c.OnEvict != nil {
		c.OnEvict(ent.chatID, ent.value)
	}
}
