// Package rate limita la frecuencia de los turnos de OTP por cliente.
//
// Fixed window sobre Redis (multi-réplica) o en memoria (single-node).
// Cada hit a /start es un email despachado y cada hit a /verify un intento
// de adivinar el código; el limitador acota ambos. La degradación es
// fail-open: un Redis caído no bloquea logins.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result es el veredicto de un hit contra la ventana vigente.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits con INCR sobre una key que incluye el inicio
// de la ventana: el contador caduca solo y todas las réplicas comparten
// la misma cuota.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "otp:rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

func (l *RedisLimiter) windowKey(key string, start time.Time) string {
	return fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	left := l.Window - now.Sub(winStart)
	wkey := l.windowKey(key, winStart)

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, wkey)
	// NX: solo el primer hit de la ventana fija el vencimiento
	pipe.ExpireNX(ctx, wkey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	hits := incr.Val()
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   left,
	}
	if !res.Allowed {
		// Lo que queda de la ventana; el handler lo publica como Retry-After
		res.RetryAfter = left
	}
	return res, nil
}
