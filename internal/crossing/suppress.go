package crossing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"shifttrack/internal/model"
)

// Cooldown rate-limits crossing emissions per subject, damping enter/exit
// flapping when a subject hovers on a perimeter boundary.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(subjectID string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[subjectID]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[subjectID] = now
	return true
}

// DedupeCache drops observations already seen within a TTL. Kafka and the
// file tail can re-deliver the same reading; replaying it must not disturb
// containment state.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now, ttl)
	}
	return false
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}

func observationKey(subjectID string, point model.GeoPoint) string {
	parts := []string{
		subjectID,
		strconv.FormatFloat(point.Latitude, 'f', -1, 64),
		strconv.FormatFloat(point.Longitude, 'f', -1, 64),
		point.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
