// Package cache keeps recently assembled comment trees in memory for a limited time.
package cache

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"forum/pkg/comments"
)

type item struct {
	roots     []*comments.Node
	expiresAt time.Time
}

// Trees is a size bounded LRU of comment forests keyed by post id. Entries expire after ttl.
// Cached forests are shared between readers and must not be modified.
//
// Every post carries a generation that Invalidate advances. A forest built from data read before an
// invalidation is refused by Set, so a slow reader cannot put back a tree a writer already dropped.
type Trees struct {
	mu   sync.Mutex
	lru  *lru.Cache[uuid.UUID, item]
	gens map[uuid.UUID]uint64
	ttl  time.Duration
	now  func() time.Time
}

func New(size int, ttl time.Duration) (*Trees, error) {
	l, err := lru.New[uuid.UUID, item](size)
	if err != nil {
		return nil, err
	}
	return &Trees{lru: l, gens: make(map[uuid.UUID]uint64), ttl: ttl, now: time.Now}, nil
}

// Get returns the cached forest of the post. On a miss it returns the current generation of the
// post, which the caller passes to Set once it has built the forest.
func (t *Trees) Get(postID uuid.UUID) ([]*comments.Node, uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.lru.Get(postID)
	if ok && t.now().After(v.expiresAt) {
		t.lru.Remove(postID)
		ok = false
	}
	if !ok {
		return nil, t.gens[postID], false
	}
	return v.roots, t.gens[postID], true
}

// Set stores the forest unless the post was invalidated after gen was obtained. It reports whether
// the forest was stored.
func (t *Trees) Set(postID uuid.UUID, gen uint64, roots []*comments.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gens[postID] != gen {
		return false
	}
	t.lru.Add(postID, item{roots: roots, expiresAt: t.now().Add(t.ttl)})
	return true
}

// Invalidate drops the cached forest of the post and advances its generation.
func (t *Trees) Invalidate(postID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gens[postID]++
	t.lru.Remove(postID)
}

func (t *Trees) Len() int {
	return t.lru.Len()
}
