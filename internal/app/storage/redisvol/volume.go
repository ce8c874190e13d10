// Package redisvol implements the rolling volume counters on Redis. INCRBY
// keeps the hour and day buckets atomic across replicas, which the in-memory
// store cannot offer once more than one instance fronts the same tenant.
package redisvol

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nilelink/trustcore/internal/app/storage"
	"github.com/nilelink/trustcore/internal/errors"
)

const (
	hourBucketFormat = "2006010215"
	dayBucketFormat  = "20060102"

	// Buckets outlive their window by one period so late checks still see
	// the closing totals.
	hourTTL = 2 * time.Hour
	dayTTL  = 48 * time.Hour
)

// Store implements storage.VolumeStore on a Redis client.
type Store struct {
	rdb *redis.Client
}

var _ storage.VolumeStore = (*Store)(nil)

// New creates a Store using the provided Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Keys are built from the lowercase address so mixed-case callers hit the
// same buckets, matching the in-memory store.
func hourKey(tenantAddr string, at time.Time) string {
	return "vol:h:" + strings.ToLower(tenantAddr) + ":" + at.UTC().Format(hourBucketFormat)
}

func dayKey(tenantAddr string, at time.Time) string {
	return "vol:d:" + strings.ToLower(tenantAddr) + ":" + at.UTC().Format(dayBucketFormat)
}

// Add increments both buckets in one MULTI/EXEC round trip and returns the
// updated totals.
func (s *Store) Add(ctx context.Context, tenantAddr string, amountUsd6 int64, at time.Time) (hourUsd6, dayUsd6 int64, err error) {
	pipe := s.rdb.TxPipeline()
	hourCmd := pipe.IncrBy(ctx, hourKey(tenantAddr, at), amountUsd6)
	pipe.Expire(ctx, hourKey(tenantAddr, at), hourTTL)
	dayCmd := pipe.IncrBy(ctx, dayKey(tenantAddr, at), amountUsd6)
	pipe.Expire(ctx, dayKey(tenantAddr, at), dayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, errors.Internal("redis volume increment", err)
	}
	return hourCmd.Val(), dayCmd.Val(), nil
}

// ResetDay drops the tenant's current day bucket.
func (s *Store) ResetDay(ctx context.Context, tenantAddr string, at time.Time) error {
	if err := s.rdb.Del(ctx, dayKey(tenantAddr, at)).Err(); err != nil {
		return errors.Internal("redis volume reset", err)
	}
	return nil
}
