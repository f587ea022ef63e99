package ratelimit

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const shardCount = 64

// Decision is the outcome of one admission check
type Decision struct {
	Allowed    bool
	Limit      int           // Policy ceiling, for advisory headers
	Remaining  int           // Admissions left in the current window
	ResetAt    time.Time     // When the current window resets
	RetryAfter time.Duration // Set only when denied
}

// entry is one (identity, endpoint) counter. Counts events in a fixed
// window that resets wholesale once resetAt passes.
type entry struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// shard holds a slice of the counter keyspace under its own lock, so
// unrelated identities never contend
type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Governor admits or denies requests against per-class budgets. Counters
// live in process memory and are keyed by (identity, endpoint); a
// background sweep evicts counters idle past the retention horizon.
type Governor struct {
	policies  map[Class]Policy
	retention time.Duration
	shards    [shardCount]*shard
	logger    *slog.Logger
	now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Governor with the given policy table. retention bounds how
// long an idle counter survives before the sweep may reclaim it.
func New(policies map[Class]Policy, retention time.Duration, logger *slog.Logger) *Governor {
	g := &Governor{
		policies:  policies,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for i := range g.shards {
		g.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return g
}

// SetClock overrides the time source, for deterministic window tests
func (g *Governor) SetClock(now func() time.Time) {
	g.now = now
}

// shardFor maps a counter key to its shard
func (g *Governor) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return g.shards[h.Sum32()%shardCount]
}

// Admit checks one request against the class policy. At or above the
// ceiling inside the window the request is denied with a retry hint;
// otherwise the counter increments and the request is allowed. An unknown
// class is allowed through so a routing mistake degrades open rather than
// blackholing traffic.
func (g *Governor) Admit(identity, endpoint string, class Class) Decision {
	policy, ok := g.policies[class]
	if !ok {
		g.logger.Warn("no rate policy for class", slog.String("class", string(class)))
		return Decision{Allowed: true}
	}

	key := fmt.Sprintf("%s|%s", identity, endpoint)
	now := g.now()

	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || now.After(e.resetAt) {
		e = &entry{
			count:    1,
			resetAt:  now.Add(policy.Window),
			lastSeen: now,
		}
		s.entries[key] = e
		return Decision{
			Allowed:   true,
			Limit:     policy.Ceiling,
			Remaining: policy.Ceiling - 1,
			ResetAt:   e.resetAt,
		}
	}

	e.lastSeen = now
	if e.count >= policy.Ceiling {
		return Decision{
			Allowed:    false,
			Limit:      policy.Ceiling,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: e.resetAt.Sub(now),
		}
	}

	e.count++
	return Decision{
		Allowed:   true,
		Limit:     policy.Ceiling,
		Remaining: policy.Ceiling - e.count,
		ResetAt:   e.resetAt,
	}
}

// Sweep removes counters whose lastSeen exceeds the retention horizon and
// returns how many were evicted. Long-idle keys are never mid-window for an
// active caller, so eviction cannot convert a deny into an allow.
func (g *Governor) Sweep() int {
	now := g.now()
	evicted := 0

	for _, s := range g.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if now.Sub(e.lastSeen) > g.retention {
				delete(s.entries, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}

	return evicted
}

// Size returns the number of live counters across all shards
func (g *Governor) Size() int {
	total := 0
	for _, s := range g.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Start runs the periodic eviction sweep until Stop is called
func (g *Governor) Start(interval time.Duration) {
	go func() {
		defer close(g.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		g.logger.Info("rate governor sweep started", slog.Duration("interval", interval))
		for {
			select {
			case <-ticker.C:
				if evicted := g.Sweep(); evicted > 0 {
					g.logger.Debug("evicted idle rate counters", slog.Int("count", evicted))
				}
			case <-g.stopCh:
				g.logger.Info("rate governor sweep stopped")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit
func (g *Governor) Stop() {
	close(g.stopCh)
	<-g.doneCh
}
