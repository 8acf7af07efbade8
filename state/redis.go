// Package state implements the durable, per-unit UnitState store: created
// lazily on first use, updated each successful worker invocation, and
// surviving process restarts. Keyed per unit, using an atomic
// compare-and-swap pattern.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/observability"
)

// casScript implements compare-and-swap on a per-unit hash: the caller
// supplies the version it last read, and the write only lands if the
// stored version still matches.
const casScript = `
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "value", ARGV[2], "version", ARGV[3])
return 1
`

// Store is the Redis-backed UnitState store. Writes for a given unit must
// be serialized by the caller — the queue's per-jobKey dedup already
// guarantees this for worker invocations.
type Store struct {
	rdb    *redis.Client
	site   string
	casSHA string
}

// NewStore preloads the CAS script and returns a ready Store scoped to
// one site.
func NewStore(ctx context.Context, rdb *redis.Client, site string) (*Store, error) {
	sha, err := rdb.ScriptLoad(ctx, casScript).Result()
	if err != nil {
		return nil, fmt.Errorf("state: preload cas script: %w", err)
	}
	return &Store{rdb: rdb, site: site, casSHA: sha}, nil
}

func (s *Store) key(unitID string) string {
	return fmt.Sprintf("bms:%s:state:%s", s.site, unitID)
}

// Get returns the unit's current state, or a zero-value state with
// Version 0 if none exists yet.
func (s *Store) Get(ctx context.Context, unitID string) (model.UnitState, error) {
	res, err := s.rdb.HMGet(ctx, s.key(unitID), "value", "version").Result()
	if err != nil {
		return model.UnitState{}, fmt.Errorf("state: get %q: %w", unitID, err)
	}
	if res[0] == nil {
		return model.UnitState{UnitID: unitID}, nil
	}

	raw, ok := res[0].(string)
	if !ok {
		return model.UnitState{}, fmt.Errorf("state: unexpected value type for %q", unitID)
	}
	var st model.UnitState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return model.UnitState{}, fmt.Errorf("state: unmarshal %q: %w", unitID, err)
	}
	if versionStr, ok := res[1].(string); ok {
		var version int64
		fmt.Sscanf(versionStr, "%d", &version)
		st.Version = version
	}
	return st, nil
}

// CompareAndSet writes newState only if the stored version still equals
// newState.Version (the version the caller read it at), then bumps the version.
// Returns false on a version conflict.
func (s *Store) CompareAndSet(ctx context.Context, unitID string, newState model.UnitState) (bool, error) {
	expectedVersion := newState.Version
	newState.Version = expectedVersion + 1

	payload, err := json.Marshal(newState)
	if err != nil {
		return false, fmt.Errorf("state: marshal %q: %w", unitID, err)
	}

	res, err := s.rdb.EvalSha(ctx, s.casSHA, []string{s.key(unitID)},
		expectedVersion, string(payload), newState.Version).Result()
	if err != nil && isNoScript(err) {
		if _, rerr := s.rdb.ScriptLoad(ctx, casScript).Result(); rerr != nil {
			return false, fmt.Errorf("state: reload cas script: %w", rerr)
		}
		res, err = s.rdb.EvalSha(ctx, s.casSHA, []string{s.key(unitID)},
			expectedVersion, string(payload), newState.Version).Result()
	}
	if err != nil {
		return false, fmt.Errorf("state: cas %q: %w", unitID, err)
	}

	ok, _ := res.(int64)
	if ok == 1 {
		observability.VersionedWriteSuccess.Inc()
		return true, nil
	}
	observability.VersionedWriteConflict.Inc()
	return false, nil
}

func isNoScript(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return len(s) >= 8 && s[:8] == "NOSCRIPT"
}
