/**
 * @description
 * Per-customer exclusivity for ledger operations. Every stage/unstage/
 * rollback/credit call for one customer runs behind that customer's mutex so
 * concurrent transfers cannot interleave a read-modify-write on the same
 * balance/suspense pair. Different customers proceed in parallel; there is no
 * global lock.
 */

package app

import (
	"sync"

	"github.com/google/uuid"
)

// customerLocks hands out one mutex per customer identifier. Mutexes are
// created on first use and kept for the life of the process.
type customerLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *customerLocks) get(id uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Lock acquires the customer's mutex and returns the release func.
func (l *customerLocks) Lock(id uuid.UUID) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

// LockPair acquires both customers' mutexes in identifier order so two
// transfers touching the same pair in opposite directions cannot deadlock.
func (l *customerLocks) LockPair(a, b uuid.UUID) func() {
	if a == b {
		return l.Lock(a)
	}
	first, second := a, b
	if b.String() < a.String() {
		first, second = b, a
	}
	fm, sm := l.get(first), l.get(second)
	fm.Lock()
	sm.Lock()
	return func() {
		sm.Unlock()
		fm.Unlock()
	}
}
