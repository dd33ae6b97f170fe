// Package ratelimit applies an adaptive, AIMD-style tokens-per-minute budget
// on top of an llm.Client. It mirrors the request rate to the provider's
// observed rate-limit signal: every clean response nudges the budget up,
// every llm.ErrRateLimited halves it. When a Redis client is supplied the
// budget is shared across processes; otherwise the limiter is process-local.
package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/dataplane-ai/analyst-agent/internal/llm"
)

// AdaptiveLimiter enforces a tokens-per-minute budget shared by every call
// that flows through the wrapped client.
type AdaptiveLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64

	redis *redis.Client
	key   string
}

// New constructs an AdaptiveLimiter with the given tokens-per-minute budget.
// When rdb and key are non-empty the budget is synchronized through Redis;
// otherwise the limiter stays process-local.
func New(ctx context.Context, rdb *redis.Client, key string, initialTPM, maxTPM float64) *AdaptiveLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}

	sharedTPM := initialTPM
	if rdb != nil && key != "" {
		if v, err := seedSharedBudget(ctx, rdb, key, initialTPM); err == nil {
			sharedTPM = v
		}
	}

	l := &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(sharedTPM/60.0), int(sharedTPM)),
		currentTPM:   sharedTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
		redis:        rdb,
		key:          key,
	}
	return l
}

func seedSharedBudget(ctx context.Context, rdb *redis.Client, key string, initialTPM float64) (float64, error) {
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := rdb.SetNX(sctx, key, strconv.Itoa(int(initialTPM)), 0).Result()
	if err != nil {
		return 0, err
	}
	if ok {
		return initialTPM, nil
	}
	cur, err := rdb.Get(sctx, key).Result()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(cur, 64)
	if err != nil || v <= 0 {
		return initialTPM, nil
	}
	return v, nil
}

// Wrap returns an llm.Client that enforces the limiter before delegating.
func (l *AdaptiveLimiter) Wrap(next llm.Client) llm.Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    llm.Client
	limiter *AdaptiveLimiter
}

func (c *limitedClient) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(ctx, err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req *llm.Request) (llm.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.observe(ctx, err)
	return stream, err
}

func (l *AdaptiveLimiter) wait(ctx context.Context, req *llm.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveLimiter) observe(ctx context.Context, err error) {
	if err == nil {
		l.probe(ctx)
		return
	}
	if errors.Is(err, llm.ErrRateLimited) {
		l.backoff(ctx)
	}
}

func (l *AdaptiveLimiter) backoff(ctx context.Context) {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.apply(newTPM)
	l.mu.Unlock()
	l.publish(ctx, newTPM)
}

func (l *AdaptiveLimiter) probe(ctx context.Context) {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.apply(newTPM)
	l.mu.Unlock()
	l.publish(ctx, newTPM)
}

// apply must be called with l.mu held.
func (l *AdaptiveLimiter) apply(tpm float64) {
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

func (l *AdaptiveLimiter) publish(ctx context.Context, tpm float64) {
	if l.redis == nil || l.key == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = l.redis.Set(sctx, l.key, strconv.Itoa(int(tpm)), 0).Err()
}

// estimateTokens computes a cheap heuristic for the size of a request: it
// counts characters across text and tool-result content and converts them to
// an approximate token count, adding a fixed buffer for framing overhead.
func estimateTokens(req *llm.Request) int {
	charCount := 0
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		for _, p := range m.Parts {
			switch v := p.(type) {
			case llm.TextPart:
				charCount += len(v.Text)
			case llm.ToolResultPart:
				if s, ok := v.Content.(string); ok {
					charCount += len(s)
				}
			}
		}
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
