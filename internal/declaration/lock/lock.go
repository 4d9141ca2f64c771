// Package lock serializes declaration transitions per (owner, year).
package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
)

// Locker grants mutual exclusion for one declaration key. The returned
// release function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, owner id.UserID, year int) (release func(), err error)
}

// Key is the lock name for a declaration.
func Key(owner id.UserID, year int) string {
	return fmt.Sprintf("declaration:%s:%d", owner, year)
}

// numShards spreads declaration keys across independent mutexes.
const numShards = 128

// DefaultTimeout bounds how long Acquire waits when ctx has no deadline.
const DefaultTimeout = 5 * time.Second

// ShardedLocker is the in-process Locker. Keys hash onto a fixed set of
// mutexes, so unrelated declarations rarely contend.
type ShardedLocker struct {
	shards  [numShards]chan struct{}
	timeout time.Duration
}

func NewShardedLocker() *ShardedLocker {
	l := &ShardedLocker{timeout: DefaultTimeout}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *ShardedLocker) Acquire(ctx context.Context, owner id.UserID, year int) (func(), error) {
	return l.acquireYears(ctx, owner, []int{year})
}

// acquireYears takes the shards of every year in ascending shard order. Years
// that hash onto the same shard take it once.
func (l *ShardedLocker) acquireYears(ctx context.Context, owner id.UserID, years []int) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	indexes := make([]int, 0, len(years))
	for _, year := range years {
		indexes = append(indexes, int(hashKey(Key(owner, year))%numShards))
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	held := make([]chan struct{}, 0, len(indexes))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, idx := range indexes {
		shard := l.shards[idx]
		select {
		case shard <- struct{}{}:
			held = append(held, shard)
		case <-ctx.Done():
			unlock()
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for declaration lock")
		}
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

// AcquireYears locks several years of one owner, lowest year first, and
// returns a single release. Lockers with shared slots take each slot once.
func AcquireYears(ctx context.Context, l Locker, owner id.UserID, years []int) (func(), error) {
	years = slices.Clone(years)
	slices.Sort(years)
	years = slices.Compact(years)
	if sl, ok := l.(*ShardedLocker); ok {
		return sl.acquireYears(ctx, owner, years)
	}

	releases := make([]func(), 0, len(years))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, year := range years {
		release, err := l.Acquire(ctx, owner, year)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
