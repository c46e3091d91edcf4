package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/molforge/graphchem/pkg/errors"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired-and-reacquired lock is never released by the old holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock is a single-holder distributed lock.  Training runs take one per
// dataset so that two schedulers cannot start conflicting runs.
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLock prepares a lock on the given name.  The TTL bounds how long a
// crashed holder can block others.
func NewLock(client *Client, name string, ttl time.Duration) *Lock {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{
		client: client,
		key:    client.key("lock:" + name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock, failing with ErrCodeTrainingLocked when another
// holder has it.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire lock "+l.key)
	}
	if !ok {
		return errors.New(errors.ErrCodeTrainingLocked, "lock already held").WithDetail(l.key)
	}
	return nil
}

// Refresh extends the TTL while a long run is still making progress.
func (l *Lock) Refresh(ctx context.Context) error {
	ok, err := l.client.rdb.Expire(ctx, l.key, l.ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to refresh lock "+l.key)
	}
	if !ok {
		return errors.New(errors.ErrCodeTrainingLocked, "lock expired before refresh").WithDetail(l.key)
	}
	return nil
}

// Release frees the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.client.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock "+l.key)
	}
	return nil
}
