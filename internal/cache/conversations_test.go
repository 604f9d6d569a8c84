package cache

import (
	"testing"
	"time"
)

func TestConversationsLRUEviction(t *testing.T) {
	c := NewConversations[string](2, 0)
	var evicted []int64
	c.OnEvict = func(chatID int64, _ string) {
		evicted = append(evicted, chatID)
	}

	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")

	if c.Len() != 2 {
		t.Fatalf("len=%d, want 2", c.Len())
	}
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("evicted=%v, want [1]", evicted)
	}
	if _, ok := c.Get(1); ok {
		t.Error("chat 1 should have been evicted")
	}

	// Touching 2 makes 3 the LRU.
	if _, ok := c.Get(2); !ok {
		t.Fatal("chat 2 missing")
	}
	c.Put(4, "d")
	if _, ok := c.Get(3); ok {
		t.Error("chat 3 should have been evicted after touching 2")
	}
	if _, ok := c.Get(2); !ok {
		t.Error("chat 2 should have survived")
	}
}

func TestConversationsAgeExpiry(t *testing.T) {
	c := NewConversations[int](0, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put(1, 10)
	c.Put(2, 20)

	now = now.Add(30 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatal("chat 1 expired too early")
	}

	// Chat 2 is now 90s stale, chat 1 only 60s... the Get above refreshed
	// chat 1's lastUsed, so only chat 2 expires.
	now = now.Add(45 * time.Second)
	if _, ok := c.Get(2); ok {
		t.Error("chat 2 should have expired")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("chat 1 should still be live")
	}
}

func TestConversationsPutUpdatesExisting(t *testing.T) {
	c := NewConversations[string](2, 0)
	c.Put(1, "a")
	c.Put(1, "b")
	if c.Len() != 1 {
		t.Fatalf("len=%d, want 1", c.Len())
	}
	if v, _ := c.Get(1); v != "b" {
		t.Errorf("value=%q, want b", v)
	}
}

func TestConversationsClear(t *testing.T) {
	c := NewConversations[int](0, 0)
	count := 0
	c.OnEvict = func(int64, int) { count++ }
	c.Put(1, 1)
	c.Put(2, 2)
	c.Clear()
	if c.Len() != 0 || count != 2 {
		t.Fatalf("len=%d count=%d", c.Len(), count)
	}
}
