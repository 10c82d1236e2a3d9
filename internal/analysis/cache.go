package analysis

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"strategyavs/internal/models"
)

type cacheEntry struct {
	assessment models.RiskAssessment
	storedAt   time.Time
}

// Cache memoizes assessments keyed by the keccak hash of the exact prompt
// text. Two prompts hit the same entry only when byte-identical. Expired
// entries are dropped on read; at capacity the oldest entry is evicted.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[common.Hash]cacheEntry
	order    []common.Hash
	now      func() time.Time
}

func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[common.Hash]cacheEntry, capacity),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(prompt string) common.Hash {
	return crypto.Keccak256Hash([]byte(prompt))
}

func (c *Cache) Get(prompt string) (models.RiskAssessment, bool) {
	if c == nil {
		return models.RiskAssessment{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(prompt)
	entry, ok := c.entries[key]
	if !ok {
		return models.RiskAssessment{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.remove(key)
		return models.RiskAssessment{}, false
	}
	return entry.assessment, true
}

func (c *Cache) Put(prompt string, assessment models.RiskAssessment) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(prompt)
	if _, ok := c.entries[key]; ok {
		c.entries[key] = cacheEntry{assessment: assessment, storedAt: c.now()}
		return
	}
	if len(c.entries) >= c.capacity && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{assessment: assessment, storedAt: c.now()}
	c.order = append(c.order, key)
}

// Len reports live entries, counting expired ones until they are read.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(key common.Hash) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
