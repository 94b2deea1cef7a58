package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const invalidationChannel = "stats-cache-invalidate"

// Broadcaster republishes local cache invalidations to every other process
// sharing the same backend, and applies invalidations published by them.
// This is supplemental to the mandatory in-process cache: the in-process
// Cache remains the primary lookup path, Broadcaster only keeps siblings
// from serving stale entries after a write on another process.
type Broadcaster struct {
	cache  *Cache
	client *redis.Client
	logger *zap.SugaredLogger
	cancel context.CancelFunc
}

// NewBroadcaster wires a Cache to a Redis pub/sub channel. Call Start to
// begin the subscriber goroutine.
func NewBroadcaster(cache *Cache, client *redis.Client, logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{cache: cache, client: client, logger: logger}
}

// Start launches the subscriber goroutine, which applies tags published by
// other processes to the local cache. Call Stop to end it.
func (b *Broadcaster) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	sub := b.client.Subscribe(ctx, invalidationChannel)
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.cache.Invalidate(msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the subscriber goroutine.
func (b *Broadcaster) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Invalidate invalidates the tag locally and publishes it for siblings.
func (b *Broadcaster) Invalidate(ctx context.Context, tag string) {
	b.cache.Invalidate(tag)
	if err := b.client.Publish(ctx, invalidationChannel, tag).Err(); err != nil {
		b.logger.Warnw("failed to publish cache invalidation", "tag", tag, "error", err)
	}
}
