package migration

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/snd-ksa/docmigrate/internal/records"
)

// keyedMutex serialises work per key. Entries are reference counted and
// removed when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of live entries
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Pool runs per-record work with bounded parallelism and at most one
// in-flight operation per (table, record id). One Pool is shared by the
// executor, auditor and duplicate resolver of a run.
type Pool struct {
	workers int
	locks   *keyedMutex
}

// NewPool creates a pool with the given worker count (minimum 1).
func NewPool(workers int) *Pool {
	return &Pool{
		workers: max(workers, 1),
		locks:   newKeyedMutex(),
	}
}

// Workers returns the parallelism limit.
func (p *Pool) Workers() int { return p.workers }

func recordKey(table records.Table, id int64) string {
	return string(table) + "#" + strconv.FormatInt(id, 10)
}

type indexedOutcome struct {
	index   int
	outcome Outcome
}

// runAll applies fn to every item and returns the outcomes in input order.
// fn reports failures through its Outcome, so one item never aborts the
// batch. Items still queued when ctx is cancelled are handed to fn, which
// fails them fast on the cancelled context.
func runAll[T any](ctx context.Context, p *Pool, items []T, key func(T) string, fn func(context.Context, T) Outcome) []Outcome {
	results := make(chan indexedOutcome, len(items))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, item := range items {
		g.Go(func() error {
			unlock := p.locks.Lock(key(item))
			defer unlock()

			results <- indexedOutcome{index: i, outcome: fn(ctx, item)}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	outcomes := make([]Outcome, len(items))
	for r := range results {
		outcomes[r.index] = r.outcome
	}
	return outcomes
}
