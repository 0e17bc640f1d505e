package materializer

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultDedupeSize bounds the duplicate-detection window. A bounded cache
// replaces the unbounded process-global dedup sets that grow with the source.
const defaultDedupeSize = 8192

// dedupe remembers recently seen record keys within one run. Keys are
// normalized so "My Title " and "my title" collide.
type dedupe struct {
	seen *lru.Cache[string, struct{}]
}

func newDedupe(size int) (*dedupe, error) {
	if size <= 0 {
		size = defaultDedupeSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &dedupe{seen: cache}, nil
}

// Seen reports whether key was already recorded, and records it if not.
func (d *dedupe) Seen(key string) bool {
	k := normalizeKey(key)
	if _, ok := d.seen.Get(k); ok {
		return true
	}
	d.seen.Add(k, struct{}{})
	return false
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}
