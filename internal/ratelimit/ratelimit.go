// Package ratelimit throttles sensitive endpoints with per-bucket sliding
// windows backed by Redis. When Redis is unreachable or unconfigured the
// limiter fails open.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Bucket names understood by the limiter.
const (
	BucketSignup             = "signup"
	BucketSignin             = "signin"
	BucketForgotPassword     = "forgot-password"
	BucketResetPassword      = "reset-password"
	BucketVerifyEmail        = "verify-email"
	BucketResendVerification = "resend-verification"
	BucketEnableTwoFactor    = "enable-2fa"
	BucketVerifyTwoFactor    = "verify-2fa"
)

// policy defines the quota of a bucket.
type policy struct {
	limit  int
	window time.Duration
}

// policies maps each bucket to its sliding-window quota.
var policies = map[string]policy{
	BucketSignup:             {limit: 3, window: time.Hour},
	BucketSignin:             {limit: 10, window: time.Hour},
	BucketForgotPassword:     {limit: 3, window: time.Hour},
	BucketResetPassword:      {limit: 5, window: time.Hour},
	BucketVerifyEmail:        {limit: 10, window: time.Hour},
	BucketResendVerification: {limit: 3, window: time.Minute},
	BucketEnableTwoFactor:    {limit: 3, window: time.Hour},
	BucketVerifyTwoFactor:    {limit: 10, window: time.Hour},
}

// failOpenLimit is the synthetic quota reported when the store is unavailable.
const failOpenLimit = 1000

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool      // Whether this attempt may proceed.
	Limit     int       // Bucket quota.
	Remaining int       // Attempts left in the window.
	ResetAt   time.Time // When the oldest in-window attempt falls out.
}

// Limiter checks sliding-window quotas against a Redis store.
type Limiter struct {
	rdb *redis.Client
}

// New constructs a Limiter. A nil client yields a limiter that always fails open.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Check records one attempt for the bucket+identifier pair and reports whether
// it is within quota. The attempt counts regardless of the outcome.
func (l *Limiter) Check(ctx context.Context, bucket, identifier string) Result {
	pol, ok := policies[bucket]
	if !ok {
		log.WithField("bucket", bucket).Warn("rate limit check for unknown bucket")
		return failOpen()
	}
	if l == nil || l.rdb == nil {
		return failOpen()
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("rl:%s:%s", bucket, identifier)
	windowStart := now.Add(-pol.window)
	member := fmt.Sprintf("%d", now.UnixNano())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, pol.window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("bucket", bucket).Warn("rate limit store unavailable, failing open")
		return failOpen()
	}

	count := int(countCmd.Val())
	resetAt := now.Add(pol.window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.Unix(0, int64(oldest[0].Score)).Add(pol.window)
	}

	remaining := pol.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= pol.limit,
		Limit:     pol.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// failOpen reports a generous synthetic quota.
func failOpen() Result {
	return Result{
		Allowed:   true,
		Limit:     failOpenLimit,
		Remaining: failOpenLimit,
		ResetAt:   time.Now().UTC().Add(time.Hour),
	}
}
