package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestPut_MaxSizeInvariantAfterEveryCall(t *testing.T) {
	c := New(Options{MaxSize: 5, MaxMemoryBytes: 1 << 20})
	for i := 0; i < 50; i++ {
		if err := c.Put(fmt.Sprintf("k%d", i), "v", 0, 10); err != nil {
			t.Fatal(err)
		}
		if c.Len() > 5 {
			t.Fatalf("after put %d: len=%d exceeds max 5", i, c.Len())
		}
	}
	if c.Len() != 5 {
		t.Fatalf("expected exactly 5 entries, got %d", c.Len())
	}
}

func TestPut_MemoryCapInvariantAfterEveryCall(t *testing.T) {
	c := New(Options{MaxSize: 1000, MaxMemoryBytes: 100})
	for i := 0; i < 30; i++ {
		if err := c.Put(fmt.Sprintf("k%d", i), "v", 0, 30); err != nil {
			t.Fatal(err)
		}
		if m := c.MemoryBytes(); m > 100 {
			t.Fatalf("after put %d: memory=%d exceeds cap 100", i, m)
		}
	}
}

func TestPut_ValueLargerThanCapRejected(t *testing.T) {
	c := New(Options{MaxSize: 10, MaxMemoryBytes: 100})
	if err := c.Put("huge", "v", 0, 101); err == nil {
		t.Fatal("expected error for oversized value")
	}
	if c.Len() != 0 {
		t.Fatal("rejected value must not be stored")
	}
}

func TestGet_PromotesToMostRecentlyUsed(t *testing.T) {
	c := New(Options{MaxSize: 3, MaxMemoryBytes: 1 << 20})
	c.Put("a", 1, 0, 1)
	c.Put("b", 2, 0, 1)
	c.Put("c", 3, 0, 1)

	// Touch "a" so "b" becomes LRU.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Put("d", 4, 0, 1) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted as LRU")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should survive", k)
		}
	}
}

func TestMemoryPressure_EvictsOldestCreatedFirst(t *testing.T) {
	c := New(Options{MaxSize: 100, MaxMemoryBytes: 100})
	c.Put("old", "v", 0, 40)
	time.Sleep(5 * time.Millisecond)
	c.Put("mid", "v", 0, 40)
	time.Sleep(5 * time.Millisecond)

	// Touch "old" so it is MRU but still oldest-created.
	c.Get("old")

	c.Put("new", "v", 0, 40) // 120 > 100: oldest-created ("old") must go

	if _, ok := c.Get("old"); ok {
		t.Fatal("oldest-created entry should be evicted under memory pressure")
	}
	if _, ok := c.Get("mid"); !ok {
		t.Fatal("mid should survive")
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("new should survive")
	}
}

func TestTTL_ExpiredGetIsMissAndPurged(t *testing.T) {
	c := New(Options{MaxSize: 10, MaxMemoryBytes: 1 << 20})
	c.Put("k", "v", 20*time.Millisecond, 1)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be live before TTL")
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry must be a miss")
	}
	for _, k := range c.Keys() {
		if k == "k" {
			t.Fatal("expired entry must be absent from introspection")
		}
	}
	s := c.Stats()
	if s.Expirations != 1 {
		t.Fatalf("expected 1 expiration, got %d", s.Expirations)
	}
}

func TestSweep_RemovesExpiredAndRelievesMemory(t *testing.T) {
	c := New(Options{MaxSize: 100, MaxMemoryBytes: 100})
	c.Put("short", "v", 10*time.Millisecond, 10)
	c.Put("long", "v", time.Hour, 10)
	time.Sleep(20 * time.Millisecond)

	if n := c.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if _, ok := c.Get("long"); !ok {
		t.Fatal("unexpired entry must survive sweep")
	}

	// Fill beyond the 80% high-water mark (cap 100 → high 80, low 60).
	for i := 0; i < 9; i++ {
		c.Put(fmt.Sprintf("m%d", i), "v", time.Hour, 10)
		time.Sleep(time.Millisecond)
	}
	c.Sweep()
	if m := c.MemoryBytes(); m > 60 {
		t.Fatalf("sweep should reduce memory to <=60%% of cap, got %d", m)
	}
}

func TestStartSweeper_CancellableAndKeepsRunning(t *testing.T) {
	c := New(Options{MaxSize: 10, MaxMemoryBytes: 1 << 20, SweepInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.StartSweeper(ctx)
		close(done)
	}()

	c.Put("k", "v", 15*time.Millisecond, 1)
	time.Sleep(50 * time.Millisecond)
	if c.Len() != 0 {
		t.Fatal("sweeper should have removed the expired entry")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancellation")
	}
}

func TestDeleteWhere(t *testing.T) {
	c := New(Options{MaxSize: 10, MaxMemoryBytes: 1 << 20})
	c.Put("context:extraction/match_list:live:a", 1, 0, 1)
	c.Put("context:extraction/match_list:live:b", 1, 0, 1)
	c.Put("context:navigation/main_menu:c", 1, 0, 1)

	removed := c.DeleteWhere(func(k string) bool {
		return strings.Contains(k, "extraction/match_list:live")
	})
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 survivor, got %d", c.Len())
	}
}

func TestStats_CountersAndLatency(t *testing.T) {
	c := New(Options{MaxSize: 2, MaxMemoryBytes: 1 << 20})
	c.Put("a", 1, 0, 1)
	c.Get("a")
	c.Get("missing")
	c.Put("b", 2, 0, 1)
	c.Put("c", 3, 0, 1) // evicts LRU

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if s.Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", s.Evictions)
	}
	if s.HitRate != 0.5 {
		t.Fatalf("hit rate = %v, want 0.5", s.HitRate)
	}
	if s.AvgAccessLatency <= 0 {
		t.Fatal("expected non-zero access latency EMA")
	}
}

func TestEstimateSize(t *testing.T) {
	if n := EstimateSize("hello"); n != 5 {
		t.Fatalf("string size = %d, want 5", n)
	}
	if n := EstimateSize([]byte{1, 2, 3}); n != 3 {
		t.Fatalf("bytes size = %d, want 3", n)
	}
	type payload struct {
		Name string `json:"name"`
	}
	if n := EstimateSize(payload{Name: "x"}); n <= 0 {
		t.Fatalf("struct size = %d, want > 0", n)
	}
}
