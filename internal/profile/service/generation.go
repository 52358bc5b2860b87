package service

import (
	"context"
	"sync"

	"waterlily/internal/profile/models"
	"waterlily/pkg/requestcontext"
)

const generationShards = 64

// generations counts committed writes per user so a read that started before
// a commit never repopulates the cache with what it saw. Users share shards;
// a collision only skips a cache write.
type generations struct {
	shards [generationShards]generationShard
}

type generationShard struct {
	mu sync.Mutex
	n  uint64
}

func (g *generations) shard(userID int64) *generationShard {
	return &g.shards[uint64(userID)%generationShards]
}

func (g *generations) current(userID int64) uint64 {
	sh := g.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.n
}

// committed runs after a write transaction commits. The generation bump and
// the invalidation happen under the shard lock that rememberAt takes, so a
// stale view cannot land in the cache between them.
func (s *Service) committed(ctx context.Context, userID int64) {
	sh := s.gens.shard(userID)
	sh.mu.Lock()
	sh.n++
	s.invalidate(ctx, userID)
	sh.mu.Unlock()

	s.reads.Forget(readKey(userID))
}

// rememberAt caches view only if no write committed since gen was observed.
func (s *Service) rememberAt(ctx context.Context, userID int64, gen uint64, view *models.CompositeView) {
	if s.cache == nil {
		return
	}
	sh := s.gens.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.n != gen {
		s.logger.DebugContext(ctx, "profile changed during read, not caching",
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.remember(ctx, userID, view)
}
