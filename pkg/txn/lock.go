// Package txn implements the transaction manager and the two-phase lock
// manager with wait-for-graph deadlock detection spec §4.8 requires.
// Grounded structurally on ramsql's Tx (other_examples,
// engine-executor-tx.go: one struct owning the active transaction handle
// plus commit/rollback) and on the teacher's pkg/monitor.LogWatcher
// ticker+context.Done polling loop, repurposed from "poll a log file" to
// "poll the wait-for graph for cycles".
package txn

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aodsql/aodsql/pkg/dbfmt"
)

// LockMode is shared (read) or exclusive (write), per spec §4.8.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// ResourceID names a lockable unit: usually "table" for a table-level lock
// or "table:rowID" for row-level locking during UPDATE/DELETE.
type ResourceID string

type holder struct {
	txnID uint64
	mode  LockMode
}

// LockManager grants shared/exclusive locks on resources and detects
// deadlock via cycle detection over the wait-for graph, aborting the
// youngest transaction in any cycle found (spec §4.8's victim policy).
type LockManager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	holders map[ResourceID][]holder
	waiting map[uint64]ResourceID // txn -> resource it is blocked on
	victims map[uint64]bool

	detectInterval time.Duration
	stopDetector   chan struct{}
}

// NewLockManager starts a background deadlock detector polling every
// interval (default 50ms if interval <= 0).
func NewLockManager(interval time.Duration) *LockManager {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	lm := &LockManager{
		holders:        map[ResourceID][]holder{},
		waiting:        map[uint64]ResourceID{},
		victims:        map[uint64]bool{},
		detectInterval: interval,
		stopDetector:   make(chan struct{}),
	}
	lm.cond = sync.NewCond(&lm.mu)
	go lm.detectLoop()
	return lm
}

// Close stops the background deadlock detector.
func (lm *LockManager) Close() {
	close(lm.stopDetector)
}

func (lm *LockManager) detectLoop() {
	ticker := time.NewTicker(lm.detectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lm.stopDetector:
			return
		case <-ticker.C:
			lm.breakCycles()
		}
	}
}

// Acquire blocks until txnID is granted mode on resource, ctx is
// cancelled, or the deadlock detector names txnID a victim.
func (lm *LockManager) Acquire(ctx context.Context, txnID uint64, resource ResourceID, mode LockMode) *dbfmt.Error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			lm.cond.Broadcast()
		case <-done:
		}
	}()

	for {
		if lm.victims[txnID] {
			delete(lm.victims, txnID)
			delete(lm.waiting, txnID)
			return dbfmt.Txn("transaction %d aborted: deadlock victim", txnID)
		}
		if ctx.Err() != nil {
			delete(lm.waiting, txnID)
			return dbfmt.Txn("transaction %d lock wait cancelled: %v", txnID, ctx.Err())
		}
		if lm.compatible(resource, txnID, mode) {
			lm.holders[resource] = append(lm.holders[resource], holder{txnID: txnID, mode: mode})
			delete(lm.waiting, txnID)
			return nil
		}
		lm.waiting[txnID] = resource
		lm.cond.Wait()
	}
}

// compatible reports whether txnID can be granted mode on resource given
// its current holders: a txn already holding the resource can upgrade,
// shared locks are mutually compatible, exclusive locks are exclusive.
func (lm *LockManager) compatible(resource ResourceID, txnID uint64, mode LockMode) bool {
	for _, h := range lm.holders[resource] {
		if h.txnID == txnID {
			continue
		}
		if mode == Exclusive || h.mode == Exclusive {
			return false
		}
	}
	return true
}

// Release drops every lock held by txnID and wakes all waiters to recheck
// compatibility.
func (lm *LockManager) Release(txnID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for res, hs := range lm.holders {
		kept := hs[:0]
		for _, h := range hs {
			if h.txnID != txnID {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(lm.holders, res)
		} else {
			lm.holders[res] = kept
		}
	}
	delete(lm.waiting, txnID)
	lm.cond.Broadcast()
}

// breakCycles scans the wait-for graph (waiter -> resource -> holders) for
// cycles and marks the youngest transaction (highest txnID, i.e. the most
// recently started) in each cycle a victim, matching spec §4.8's
// youngest-aborts deadlock resolution policy.
func (lm *LockManager) breakCycles() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	graph := map[uint64][]uint64{}
	for waiter, resource := range lm.waiting {
		for _, h := range lm.holders[resource] {
			if h.txnID != waiter {
				graph[waiter] = append(graph[waiter], h.txnID)
			}
		}
	}

	visited := map[uint64]int{} // 0 unvisited, 1 in-stack, 2 done
	var stack []uint64
	var cycleFound []uint64

	var dfs func(n uint64) bool
	dfs = func(n uint64) bool {
		visited[n] = 1
		stack = append(stack, n)
		for _, next := range graph[n] {
			if visited[next] == 1 {
				// cycle: everything from next's position onward in stack
				for i, s := range stack {
					if s == next {
						cycleFound = append([]uint64{}, stack[i:]...)
						break
					}
				}
				return true
			}
			if visited[next] == 0 && dfs(next) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		visited[n] = 2
		return false
	}

	nodes := make([]uint64, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	for _, n := range nodes {
		if visited[n] == 0 {
			stack = nil
			if dfs(n) {
				break
			}
		}
	}

	if len(cycleFound) == 0 {
		return
	}
	victim := cycleFound[0]
	for _, n := range cycleFound[1:] {
		if n > victim {
			victim = n
		}
	}
	lm.victims[victim] = true
	lm.cond.Broadcast()
}
