// Package coordination implements the optional intra-site HA leader
// election: when HA_ENABLED is set, only the replica holding the Redis
// lease runs Tickers and the Worker Pool, so the at-most-one-live-job
// invariant survives a replica failover. A single-resource lease — no
// janitor, no cross-site epoch fencing.
package coordination

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightloop/sitecore/observability"
)

const leaseKey = "bms:ha:leader"

// LeaderElector holds a Redis SETNX lease and renews it on a cadence of
// ttl/3. Callers register OnElected/OnLost to start and stop the pieces
// of the pipeline that must run on exactly one replica.
type LeaderElector struct {
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration

	onElected func(context.Context)
	onLost    func()

	mu           sync.RWMutex
	isLeader     bool
	leaderCancel context.CancelFunc
}

// NewLeaderElector constructs an elector for this process. nodeID should
// be unique per replica (hostname+pid is a reasonable default).
func NewLeaderElector(rdb *redis.Client, nodeID string, ttl time.Duration) *LeaderElector {
	return &LeaderElector{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

// SetCallbacks registers the start/stop hooks run on election and loss.
func (l *LeaderElector) SetCallbacks(onElected func(context.Context), onLost func()) {
	l.onElected = onElected
	l.onLost = onLost
}

// IsLeader reports whether this replica currently holds the lease.
func (l *LeaderElector) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isLeader
}

// Run attempts to acquire and hold the lease until ctx is cancelled,
// retrying on the renewal cadence whenever it does not hold the lease.
func (l *LeaderElector) Run(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		l.attempt(ctx)
		select {
		case <-ctx.Done():
			l.stepDown()
			return
		case <-ticker.C:
		}
	}
}

func (l *LeaderElector) attempt(ctx context.Context) {
	if l.IsLeader() {
		ok, err := l.renew(ctx)
		if err != nil {
			log.Printf("coordination: renew failed: %v", err)
		}
		if !ok {
			l.stepDown()
		}
		return
	}

	acquired, err := l.rdb.SetNX(ctx, leaseKey, l.nodeID, l.ttl).Result()
	if err != nil {
		log.Printf("coordination: acquire failed: %v", err)
		return
	}
	if acquired {
		l.becomeLeader(ctx)
	}
}

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

func (l *LeaderElector) renew(ctx context.Context) (bool, error) {
	res, err := l.rdb.Eval(ctx, renewScript, []string{leaseKey}, l.nodeID, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (l *LeaderElector) becomeLeader(ctx context.Context) {
	l.mu.Lock()
	leaderCtx, cancel := context.WithCancel(ctx)
	l.isLeader = true
	l.leaderCancel = cancel
	l.mu.Unlock()

	log.Printf("coordination: %s acquired leadership", l.nodeID)
	observability.LeaderStatus.Set(1)
	if l.onElected != nil {
		go l.onElected(leaderCtx)
	}
}

func (l *LeaderElector) stepDown() {
	l.mu.Lock()
	wasLeader := l.isLeader
	cancel := l.leaderCancel
	l.isLeader = false
	l.leaderCancel = nil
	l.mu.Unlock()

	if !wasLeader {
		return
	}
	log.Printf("coordination: %s lost leadership", l.nodeID)
	observability.LeaderStatus.Set(0)
	if cancel != nil {
		cancel()
	}
	if l.onLost != nil {
		l.onLost()
	}
}
