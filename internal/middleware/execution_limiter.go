package middleware

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxConcurrentRuns caps simultaneous workflow runs per client so a
// single caller cannot saturate the engine.
const DefaultMaxConcurrentRuns = 3

type runSlot struct {
	count       atomic.Int32
	lastAcquire atomic.Int64 // unix seconds of last acquire
}

// ExecutionLimiter enforces per-client concurrency and a daily run quota.
// Concurrency is tracked in process; the daily counter lives in Redis so the
// quota holds across instances. Without Redis only the concurrency cap applies.
type ExecutionLimiter struct {
	redis         *redis.Client
	slots         sync.Map // client id → *runSlot
	maxConcurrent int
	maxPerDay     int64
	maxSlotAge    time.Duration
}

func NewExecutionLimiter(redisClient *redis.Client, maxConcurrent int, maxPerDay int64) *ExecutionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	return &ExecutionLimiter{
		redis:         redisClient,
		maxConcurrent: maxConcurrent,
		maxPerDay:     maxPerDay,
		maxSlotAge:    15 * time.Minute,
	}
}

// clientID identifies the caller: the X-Client-ID header when present,
// otherwise the remote IP.
func clientID(c *fiber.Ctx) string {
	if id := c.Get("X-Client-ID"); id != "" {
		return id
	}
	return c.IP()
}

// CheckLimit is the fiber pre-execution middleware: verifies the daily quota
// and stores the client id for the handler to acquire a concurrency slot.
func (el *ExecutionLimiter) CheckLimit(c *fiber.Ctx) error {
	client := clientID(c)
	c.Locals("client_id", client)

	if el.redis == nil || el.maxPerDay <= 0 {
		return c.Next()
	}

	ctx := context.Background()
	key := dailyKey(client)
	count, err := el.redis.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		log.Printf("⚠️ [LIMITER] Redis unavailable, skipping quota check: %v", err)
		return c.Next()
	}
	if count >= el.maxPerDay {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":    "Daily run limit exceeded",
			"limit":    el.maxPerDay,
			"used":     count,
			"reset_at": nextMidnightUTC(),
		})
	}
	return c.Next()
}

// AcquireRun claims a concurrency slot. Returns false when the client is at
// its cap. Stale slots (crashed callers) auto-release after maxSlotAge.
func (el *ExecutionLimiter) AcquireRun(client string) bool {
	value, _ := el.slots.LoadOrStore(client, &runSlot{})
	slot := value.(*runSlot)

	last := slot.lastAcquire.Load()
	if last > 0 && time.Since(time.Unix(last, 0)) > el.maxSlotAge && slot.count.Load() > 0 {
		log.Printf("⚠️ [LIMITER] Auto-releasing stale slots for client '%s'", client)
		slot.count.Store(0)
	}

	if int(slot.count.Load()) >= el.maxConcurrent {
		return false
	}
	slot.count.Add(1)
	slot.lastAcquire.Store(time.Now().Unix())
	return true
}

// ReleaseRun frees a concurrency slot and bumps the daily counter.
func (el *ExecutionLimiter) ReleaseRun(client string) {
	if value, ok := el.slots.Load(client); ok {
		if slot := value.(*runSlot); slot.count.Load() > 0 {
			slot.count.Add(-1)
		}
	}
	el.incrementDaily(client)
}

func (el *ExecutionLimiter) incrementDaily(client string) {
	if el.redis == nil || el.maxPerDay <= 0 {
		return
	}
	ctx := context.Background()
	key := dailyKey(client)
	pipe := el.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Until(nextMidnightUTC())+24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("⚠️ [LIMITER] Failed to increment daily counter: %v", err)
	}
}

func dailyKey(client string) string {
	return fmt.Sprintf("blockflow:runs:%s:%s", client, time.Now().UTC().Format("2006-01-02"))
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
