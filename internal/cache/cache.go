// Package cache provides an advisory key-value cache backed by Redis that
// falls back to an in-process expiring map whenever Redis is unavailable.
// Callers treat a miss as "recompute"; errors never leave this package.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// errCacheUnavailable marks operations served by the fallback because Redis is degraded.
var errCacheUnavailable = errors.New("cache backing store unavailable")

// Options configures the cache.
type Options struct {
	// RedisURL is a redis:// URL. Empty runs the cache in fallback mode only.
	RedisURL string
	// ProbeInterval controls how often Redis health is re-checked.
	ProbeInterval time.Duration
	Logger        *slog.Logger
}

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Cache is safe for concurrent use. Construct it once with New and share it.
type Cache struct {
	rdb     *redis.Client
	healthy atomic.Bool
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	fallback map[string]entry

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New builds the cache and, when a Redis URL is configured, performs an
// initial health check and starts the background probe.
func New(ctx context.Context, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 15 * time.Second
	}

	c := &Cache{
		logger:   logger,
		now:      time.Now,
		fallback: make(map[string]entry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if strings.TrimSpace(opts.RedisURL) == "" {
		logger.Info("cache: redis not configured, using in-memory fallback")
		close(c.done)
		return c
	}

	redisOpts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Warn("cache: invalid redis URL, using in-memory fallback", slog.Any("error", err))
		close(c.done)
		return c
	}
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second
	redisOpts.MaxRetries = 3

	c.rdb = redis.NewClient(redisOpts)
	c.rdb.AddHook(healthHook{cache: c})

	if err := c.ping(ctx); err != nil {
		logger.Warn("cache: redis unreachable at startup, using in-memory fallback",
			slog.String("addr", redisOpts.Addr),
			slog.Any("error", errors.Join(errCacheUnavailable, err)),
		)
	} else {
		c.markHealthy()
	}
	go c.probeLoop(opts.ProbeInterval)

	return c
}

// Healthy reports whether operations are currently delegated to Redis.
func (c *Cache) Healthy() bool {
	return c.rdb != nil && c.healthy.Load()
}

// Set stores value under key. A ttl of zero means no expiry.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c.Healthy() {
		err := c.rdb.Set(ctx, key, value, ttl).Err()
		if err == nil {
			return
		}
		c.degrade("set", err)
	}

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.fallback[key] = entry{value: value, expires: expires}
	c.mu.Unlock()
}

// Get returns the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c.Healthy() {
		value, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			return value, true
		case errors.Is(err, redis.Nil):
			return "", false
		default:
			c.degrade("get", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookupLocked(key)
	if !ok {
		return "", false
	}
	return e.value, true
}

// Del removes key.
func (c *Cache) Del(ctx context.Context, key string) {
	if c.Healthy() {
		err := c.rdb.Del(ctx, key).Err()
		if err == nil {
			return
		}
		c.degrade("del", err)
	}

	c.mu.Lock()
	delete(c.fallback, key)
	c.mu.Unlock()
}

// Keys lists keys matching pattern, where "*" matches any run of characters
// and everything else matches literally against the whole key.
func (c *Cache) Keys(ctx context.Context, pattern string) []string {
	if c.Healthy() {
		keys, err := c.rdb.Keys(ctx, redisGlob(pattern)).Result()
		if err == nil {
			return keys
		}
		c.degrade("keys", err)
	}

	re := patternRegexp(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for key := range c.fallback {
		if !re.MatchString(key) {
			continue
		}
		if _, ok := c.lookupLocked(key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if c.Healthy() {
		n, err := c.rdb.Exists(ctx, key).Result()
		if err == nil {
			return n > 0
		}
		c.degrade("exists", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok
}

// Close stops the health probe and releases the Redis client.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		if c.rdb != nil {
			err = c.rdb.Close()
		}
	})
	return err
}

// lookupLocked evicts key when it has expired.
func (c *Cache) lookupLocked(key string) (entry, bool) {
	e, ok := c.fallback[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(c.now()) {
		delete(c.fallback, key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) probeLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.probe(context.Background())
		}
	}
}

func (c *Cache) probe(ctx context.Context) {
	if err := c.ping(ctx); err != nil {
		c.degrade("ping", err)
		return
	}
	c.markHealthy()
}

func (c *Cache) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.rdb.Ping(pingCtx).Err()
}

func (c *Cache) markHealthy() {
	if c.healthy.CompareAndSwap(false, true) {
		c.logger.Info("cache: redis connected")
	}
}

func (c *Cache) degrade(op string, err error) {
	if c.healthy.CompareAndSwap(true, false) {
		c.logger.Warn("cache: redis unavailable, using in-memory fallback",
			slog.String("op", op),
			slog.Any("error", errors.Join(errCacheUnavailable, err)),
		)
		return
	}
	c.logger.Debug("cache: redis operation failed", slog.String("op", op), slog.Any("error", err))
}

// healthHook follows connection dials so that connect and connection-error
// signals toggle the health flag.
type healthHook struct {
	cache *Cache
}

func (h healthHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cache.degrade("dial", err)
			return nil, err
		}
		h.cache.markHealthy()
		return conn, nil
	}
}

func (h healthHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h healthHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func patternRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile(`(?s)^` + strings.Join(parts, ".*") + `$`)
}

// redisGlob escapes every glob metacharacter Redis understands except "*".
func redisGlob(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
