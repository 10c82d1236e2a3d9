package analysis

import (
	"fmt"
	"testing"
	"time"

	"strategyavs/internal/models"
)

func TestCacheTTLExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCache(5*time.Minute, 100)
	c.now = func() time.Time { return now }

	c.Put("prompt", models.RiskAssessment{Safe: true, Reasoning: "ok"})
	if _, ok := c.Get("prompt"); !ok {
		t.Fatalf("fresh entry must hit")
	}

	now = now.Add(5*time.Minute - time.Second)
	if _, ok := c.Get("prompt"); !ok {
		t.Fatalf("entry inside ttl must hit")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get("prompt"); ok {
		t.Fatalf("entry at ttl must expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be dropped, len=%d", c.Len())
	}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewCache(time.Minute, 3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("prompt-%d", i), models.RiskAssessment{Reasoning: fmt.Sprintf("r%d", i)})
	}
	c.Put("prompt-3", models.RiskAssessment{Reasoning: "r3"})

	if _, ok := c.Get("prompt-0"); ok {
		t.Fatalf("oldest entry must be evicted")
	}
	for i := 1; i <= 3; i++ {
		if _, ok := c.Get(fmt.Sprintf("prompt-%d", i)); !ok {
			t.Fatalf("prompt-%d must survive eviction", i)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("len got=%d want=3", c.Len())
	}
}

func TestCacheKeyIsExactBytes(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Put("prompt", models.RiskAssessment{Reasoning: "ok"})
	if _, ok := c.Get("prompt "); ok {
		t.Fatalf("trailing space must be a different key")
	}
	if _, ok := c.Get("Prompt"); ok {
		t.Fatalf("case change must be a different key")
	}
}
