// Package ratelimit límites de peticiones por tenant: ventana fija en Redis cuando hay varias
// instancias, token bucket en memoria cuando no hay Redis.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decide si una petición más de key cabe en el límite.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisOpts conexión a Redis.
type RedisOpts struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedisClient abre el cliente y verifica la conexión con PING.
func NewRedisClient(ctx context.Context, opts RedisOpts) (*redis.Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Redis ventana fija compartida entre instancias: INCR sobre rl:{key}:{ventana}.
type Redis struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis crea el limitador. window <= 0 usa un segundo.
func NewRedis(rdb redis.Cmdable, limit int, window time.Duration) *Redis {
	if window <= 0 {
		window = time.Second
	}
	return &Redis{rdb: rdb, limit: int64(limit), window: window, prefix: "rl:tenant:", now: time.Now}
}

// Allow incrementa el contador de la ventana actual.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	slot := r.now().UnixNano() / int64(r.window)
	k := r.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := r.rdb.Pipeline()
	cnt := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return cnt.Val() <= r.limit, nil
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Local token bucket por key en el proceso. Los buckets sin uso durante ttl se descartan.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewLocal crea el limitador en memoria. burst <= 0 usa rps.
func NewLocal(rps, burst int) *Local {
	if burst <= 0 {
		burst = rps
	}
	return &Local{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     5 * time.Minute,
		now:     time.Now,
	}
}

// Allow consume un token del bucket de key.
func (l *Local) Allow(ctx context.Context, key string) (bool, error) {
	if l.rps <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst), seen: now}
		l.buckets[key] = b
		l.sweep(now)
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

// sweep descarta buckets inactivos; se llama al crear uno nuevo.
func (l *Local) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, k)
		}
	}
}
