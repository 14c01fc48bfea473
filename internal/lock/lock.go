// Package lock serializes check-then-act sequences on (table, date) pairs
// across requests and, with Redis, across service instances.  They keep
// concurrent attempts from piling up on the same rows and bound how long a
// caller waits.  Correctness rests on the store: inside a transaction the
// table rows are locked before the slot is read, and occupancy is a
// locking read, so an expired key lock never lets two reservations of the
// same table commit.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker acquires all keys or none.  The returned unlock releases them and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// TableKeys returns the sorted, de-duplicated lock keys for tableIDs on
// date.  Acquiring keys in a fixed order prevents lock-order deadlocks
// between requests touching overlapping table sets.
func TableKeys(date string, tableIDs []uint64) []string {
	seen := make(map[uint64]bool, len(tableIDs))
	ids := make([]uint64, 0, len(tableIDs))
	for _, id := range tableIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("table:%d:%s", id, date))
	}
	return keys
}

// BookingKey locks a single booking, used by payment callbacks and staff
// actions.
func BookingKey(id uint64) string { return fmt.Sprintf("booking:%d", id) }

// UserKey locks a user's cart.
func UserKey(userID uint64) string { return fmt.Sprintf("cart:%d", userID) }

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[i-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
