package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightloop/sitecore/model"
)

// enqueueScript atomically checks the job-data key for existence (the
// dedup guard: a key present means the job is waiting or active) and, if
// absent, writes the payload and adds it to the waiting set.
const enqueueScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`

// reserveScript pops the highest-priority member of the waiting set and
// moves it into the active set scored by reservation deadline.
const reserveScript = `
local members = redis.call("ZREVRANGE", KEYS[1], 0, 0)
if #members == 0 then
  return false
end
local member = members[1]
redis.call("ZREM", KEYS[1], member)
redis.call("ZADD", KEYS[2], ARGV[1], member)
return member
`

type redisPayload struct {
	Job          model.Job     `json:"job"`
	StallTimeout time.Duration `json:"stallTimeout"`
	MaxRetries   int           `json:"maxRetries"`
	RetryBase    time.Duration `json:"retryBase"`
	StallLimit   int           `json:"stallLimit"`
}

// RedisQueue is the production Queue backend: a per-site waiting ZSET
// (score = priority, ZREVRANGE for highest-first), an active ZSET (score
// = reservation deadline, scanned by the reaper), capped completed/failed
// lists, and per-job counter keys tracking retry/stall counts.
type RedisQueue struct {
	rdb    *redis.Client
	site   string
	enqSHA string
	resSHA string
}

// NewRedisQueue preloads the Lua scripts and returns a ready RedisQueue
// scoped to one site.
func NewRedisQueue(ctx context.Context, rdb *redis.Client, site string) (*RedisQueue, error) {
	enqSHA, err := rdb.ScriptLoad(ctx, enqueueScript).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: preload enqueue script: %w", err)
	}
	resSHA, err := rdb.ScriptLoad(ctx, reserveScript).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: preload reserve script: %w", err)
	}
	return &RedisQueue{rdb: rdb, site: site, enqSHA: enqSHA, resSHA: resSHA}, nil
}

func (q *RedisQueue) jobKeyOf(key string) string     { return fmt.Sprintf("bms:%s:job:%s", q.site, key) }
func (q *RedisQueue) waitingKey() string              { return fmt.Sprintf("bms:%s:queue:waiting", q.site) }
func (q *RedisQueue) activeKey() string               { return fmt.Sprintf("bms:%s:queue:active", q.site) }
func (q *RedisQueue) completedKey() string            { return fmt.Sprintf("bms:%s:queue:completed", q.site) }
func (q *RedisQueue) failedKey() string               { return fmt.Sprintf("bms:%s:queue:failed", q.site) }
func (q *RedisQueue) retryCountKey(key string) string { return fmt.Sprintf("bms:%s:retrycount:%s", q.site, key) }
func (q *RedisQueue) stallCountKey(key string) string { return fmt.Sprintf("bms:%s:stallcount:%s", q.site, key) }
func (q *RedisQueue) delayedKey() string              { return fmt.Sprintf("bms:%s:queue:delayed", q.site) }

func (q *RedisQueue) Enqueue(ctx context.Context, spec JobSpec) error {
	if spec.Job.EnqueuedAt.IsZero() {
		spec.Job.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(redisPayload{
		Job:          spec.Job,
		StallTimeout: spec.StallTimeout,
		MaxRetries:   spec.MaxRetries,
		RetryBase:    spec.RetryBase,
		StallLimit:   spec.StallLimit,
	})
	if err != nil {
		return fmt.Errorf("queue: marshal job %q: %w", spec.Job.Key, err)
	}

	res, err := q.rdb.EvalSha(ctx, q.enqSHA, []string{q.jobKeyOf(spec.Job.Key), q.waitingKey()},
		string(payload), spec.Job.Priority, spec.Job.Key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil && isNoScript(err) {
		if _, rerr := q.rdb.ScriptLoad(ctx, enqueueScript).Result(); rerr != nil {
			return fmt.Errorf("queue: reload enqueue script: %w", rerr)
		}
		res, err = q.rdb.EvalSha(ctx, q.enqSHA, []string{q.jobKeyOf(spec.Job.Key), q.waitingKey()},
			string(payload), spec.Job.Priority, spec.Job.Key).Result()
	}
	if err != nil {
		return fmt.Errorf("queue: enqueue %q: %w", spec.Job.Key, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (q *RedisQueue) Reserve(ctx context.Context, _ string, timeout time.Duration) (*model.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		member, err := q.popOnce(ctx)
		if err != nil {
			return nil, err
		}
		if member != "" {
			payload, err := q.rdb.Get(ctx, q.jobKeyOf(member)).Result()
			if err == redis.Nil {
				// data evicted/expired between pop and read; skip, try again.
			} else if err != nil {
				return nil, fmt.Errorf("queue: load job %q: %w", member, err)
			} else {
				var p redisPayload
				if err := json.Unmarshal([]byte(payload), &p); err != nil {
					return nil, fmt.Errorf("queue: unmarshal job %q: %w", member, err)
				}
				if p.StallTimeout > 0 {
					stallAt := time.Now().Add(p.StallTimeout).Unix()
					if err := q.rdb.ZAdd(ctx, q.activeKey(), redis.Z{Score: float64(stallAt), Member: member}).Err(); err != nil {
						return nil, fmt.Errorf("queue: set reservation deadline %q: %w", member, err)
					}
				}
				job := p.Job
				return &job, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (q *RedisQueue) popOnce(ctx context.Context) (string, error) {
	res, err := q.rdb.EvalSha(ctx, q.resSHA, []string{q.waitingKey(), q.activeKey()},
		time.Now().Add(30*time.Second).Unix()).Result()
	if err != nil && isNoScript(err) {
		if _, rerr := q.rdb.ScriptLoad(ctx, reserveScript).Result(); rerr != nil {
			return "", fmt.Errorf("queue: reload reserve script: %w", rerr)
		}
		res, err = q.rdb.EvalSha(ctx, q.resSHA, []string{q.waitingKey(), q.activeKey()},
			time.Now().Add(30*time.Second).Unix()).Result()
	}
	if err != nil {
		return "", fmt.Errorf("queue: reserve: %w", err)
	}
	member, ok := res.(string)
	if !ok {
		return "", nil
	}
	return member, nil
}

func (q *RedisQueue) Ack(ctx context.Context, jobKey string) error {
	payload, err := q.rdb.Get(ctx, q.jobKeyOf(jobKey)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("queue: ack load %q: %w", jobKey, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.activeKey(), jobKey)
	pipe.Del(ctx, q.jobKeyOf(jobKey), q.retryCountKey(jobKey), q.stallCountKey(jobKey))
	if payload != "" {
		pipe.LPush(ctx, q.completedKey(), payload)
		pipe.LTrim(ctx, q.completedKey(), 0, completedRetention-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: ack %q: %w", jobKey, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, jobKey string, _ error) error {
	raw, err := q.rdb.Get(ctx, q.jobKeyOf(jobKey)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue: fail load %q: %w", jobKey, err)
	}
	var p redisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("queue: fail unmarshal %q: %w", jobKey, err)
	}

	retries, err := q.rdb.Incr(ctx, q.retryCountKey(jobKey)).Result()
	if err != nil {
		return fmt.Errorf("queue: incr retry count %q: %w", jobKey, err)
	}

	if int(retries) > p.MaxRetries {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.activeKey(), jobKey)
		pipe.Del(ctx, q.jobKeyOf(jobKey), q.retryCountKey(jobKey), q.stallCountKey(jobKey))
		pipe.LPush(ctx, q.failedKey(), raw)
		pipe.LTrim(ctx, q.failedKey(), 0, failedRetention-1)
		_, err := pipe.Exec(ctx)
		return err
	}

	p.Job.Attempt = int(retries)
	updated, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("queue: marshal retry payload %q: %w", jobKey, err)
	}

	delay := backoffDelay(p.RetryBase, int(retries))
	readyAt := time.Now().Add(delay).Unix()
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.activeKey(), jobKey)
	pipe.Set(ctx, q.jobKeyOf(jobKey), string(updated), 0)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: jobKey})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("queue: requeue %q: %w", jobKey, err)
	}
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	waiting, err := q.rdb.ZCard(ctx, q.waitingKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats waiting: %w", err)
	}
	active, err := q.rdb.ZCard(ctx, q.activeKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats active: %w", err)
	}
	completed, err := q.rdb.LLen(ctx, q.completedKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats completed: %w", err)
	}
	failed, err := q.rdb.LLen(ctx, q.failedKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("queue: stats failed: %w", err)
	}
	return Stats{
		Waiting:   int(waiting),
		Active:    int(active),
		Completed: int(completed),
		Failed:    int(failed),
	}, nil
}

// ReapStalled scans the active set for reservations past their deadline
// (score is an absolute unix-seconds deadline) and returns them to waiting,
// or to failed once the per-job stall limit is exceeded. It also promotes
// any delayed retry whose backoff window has elapsed into the waiting set;
// promoted retries are not included in the returned slice since they were
// never stalled, just waiting out their backoff.
func (q *RedisQueue) ReapStalled(ctx context.Context) ([]model.Job, error) {
	now := time.Now().Unix()
	expired, err := q.rdb.ZRangeByScore(ctx, q.activeKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan active: %w", err)
	}

	var reclaimed []model.Job
	for _, jobKey := range expired {
		raw, err := q.rdb.Get(ctx, q.jobKeyOf(jobKey)).Result()
		if err == redis.Nil {
			q.rdb.ZRem(ctx, q.activeKey(), jobKey)
			continue
		}
		if err != nil {
			return reclaimed, fmt.Errorf("queue: load stalled job %q: %w", jobKey, err)
		}
		var p redisPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return reclaimed, fmt.Errorf("queue: unmarshal stalled job %q: %w", jobKey, err)
		}

		stalls, err := q.rdb.Incr(ctx, q.stallCountKey(jobKey)).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("queue: incr stall count %q: %w", jobKey, err)
		}

		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.activeKey(), jobKey)
		if int(stalls) > p.StallLimit {
			pipe.Del(ctx, q.jobKeyOf(jobKey), q.retryCountKey(jobKey), q.stallCountKey(jobKey))
			pipe.LPush(ctx, q.failedKey(), raw)
			pipe.LTrim(ctx, q.failedKey(), 0, failedRetention-1)
		} else {
			pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: float64(p.Job.Priority), Member: jobKey})
			reclaimed = append(reclaimed, p.Job)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, fmt.Errorf("queue: reap %q: %w", jobKey, err)
		}
	}

	if err := q.promoteReadyDelayed(ctx, now); err != nil {
		return reclaimed, err
	}
	return reclaimed, nil
}

// promoteReadyDelayed moves every delayed retry whose backoff window has
// elapsed (score <= now) into the waiting set, scored by its job priority.
func (q *RedisQueue) promoteReadyDelayed(ctx context.Context, now int64) error {
	ready, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: scan delayed: %w", err)
	}

	for _, jobKey := range ready {
		raw, err := q.rdb.Get(ctx, q.jobKeyOf(jobKey)).Result()
		if err == redis.Nil {
			q.rdb.ZRem(ctx, q.delayedKey(), jobKey)
			continue
		}
		if err != nil {
			return fmt.Errorf("queue: load delayed job %q: %w", jobKey, err)
		}
		var p redisPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("queue: unmarshal delayed job %q: %w", jobKey, err)
		}

		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), jobKey)
		pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: float64(p.Job.Priority), Member: jobKey})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue: promote delayed %q: %w", jobKey, err)
		}
	}
	return nil
}

func isNoScript(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return len(s) >= 8 && s[:8] == "NOSCRIPT"
}
