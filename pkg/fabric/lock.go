// lock.go implements cross-process exclusivity for an Arena's coordinated
// step, using a Redis-backed fencing token so only one controller process
// holds a given stack's coordination lock at a time.
package fabric

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/l2fabric/valved/internal/ofpctl/errorkit"
)

var acquireArenaLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

var releaseArenaLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Lock is a distributed mutual-exclusion lock over one stack's
// coordinated step, held across process restarts of the external event
// loop that drives an Arena.
type Lock struct {
	client *redis.Client
	ctx    context.Context
}

// NewLock builds a Lock backed by a Redis instance at addr.
func NewLock(addr string) *Lock {
	return &Lock{client: redis.NewClient(&redis.Options{Addr: addr}), ctx: context.Background()}
}

// Close releases the underlying Redis connection.
func (l *Lock) Close() error { return l.client.Close() }

func lockKey(stackName string) string { return fmt.Sprintf("VALVED_STACK_LOCK|%s", stackName) }

// Acquire takes exclusive ownership of stackName's coordinated step for up
// to ttl, identified by holder (typically the process's hostname+pid).
// Returns errorkit.ErrArenaLocked if another holder already owns it.
func (l *Lock) Acquire(stackName, holder string, ttl time.Duration) error {
	key := lockKey(stackName)
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := acquireArenaLockScript.Run(l.ctx, l.client, []string{key}, holder, now, fmt.Sprintf("%d", int(ttl.Seconds()))).Int()
	if err != nil {
		return fmt.Errorf("acquiring arena lock for %s: %w", stackName, err)
	}
	if result == 0 {
		return errorkit.ErrArenaLocked
	}
	return nil
}

// Release relinquishes stackName's lock, verifying holder still owns it.
func (l *Lock) Release(stackName, holder string) error {
	key := lockKey(stackName)
	result, err := releaseArenaLockScript.Run(l.ctx, l.client, []string{key}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing arena lock for %s: %w", stackName, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("arena lock holder mismatch for %s", stackName)
	case -1:
		return nil // already gone: treat as success
	}
	return nil
}
