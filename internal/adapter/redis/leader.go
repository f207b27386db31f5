package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotLeader is returned by Renew when this instance no longer holds the lease.
var ErrNotLeader = errors.New("not leader")

var renewScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LeaderLease implements single-leader election with SET NX and a TTL, so only one replica
// runs the retention sweep. A crashed leader's lease simply expires.
type LeaderLease struct {
	rdb        *goredis.Client
	key        string
	instanceID string
	ttl        time.Duration
}

func NewLeaderLease(rdb *goredis.Client, key, instanceID string, ttl time.Duration) *LeaderLease {
	return &LeaderLease{rdb: rdb, key: key, instanceID: instanceID, ttl: ttl}
}

// Acquire reports whether this instance holds the lease after the call. It renews an
// existing lease held by this instance.
func (l *LeaderLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	switch err := l.Renew(ctx); {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotLeader):
		return false, nil
	default:
		return false, err
	}
}

func (l *LeaderLease) Renew(ctx context.Context) error {
	renewed, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if renewed == 0 {
		return ErrNotLeader
	}
	return nil
}

// Release gives up the lease if this instance still holds it.
func (l *LeaderLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err()
}
