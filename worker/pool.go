// Package worker implements the bounded worker pool that consumes Jobs
// from the Queue and runs them through the Logic Host.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/observability"
	"github.com/brightloop/sitecore/registry"
	"github.com/brightloop/sitecore/timeline"
)

// MetricSource fetches a fresh MetricSnapshot for a unit.
type MetricSource interface {
	FetchSnapshot(ctx context.Context, unitID string, siteID int) (model.MetricSnapshot, error)
}

// SettingsSource resolves the current SettingsBundle for a unit.
type SettingsSource interface {
	FetchSettings(ctx context.Context, unitID string) (model.SettingsBundle, error)
}

// StateStore is the durable per-unit state store.
type StateStore interface {
	Get(ctx context.Context, unitID string) (model.UnitState, error)
	CompareAndSet(ctx context.Context, unitID string, newState model.UnitState) (bool, error)
}

// LogicHost invokes the unit's control algorithm.
type LogicHost interface {
	Invoke(ctx context.Context, unit registry.EquipmentUnit, metrics model.MetricSnapshot, settings model.SettingsBundle, state model.UnitState) ([]model.Result, error)
}

// CommandWriter appends extracted commands to the command store.
type CommandWriter interface {
	Write(ctx context.Context, commands []model.Command) error
}

// Queue is the subset of the Queue interface the worker pool consumes.
type Queue interface {
	Reserve(ctx context.Context, consumerID string, timeout time.Duration) (*model.Job, error)
	Ack(ctx context.Context, jobKey string) error
	Fail(ctx context.Context, jobKey string, cause error) error
}

// InFlightClearer removes a jobKey from the Gate's in-flight tracking set
// once a job is ack'd or failed.
type InFlightClearer interface {
	ClearInFlight(jobKey string)
}

// Extractor turns algorithm Results into durable Command records.
type Extractor func(unit registry.EquipmentUnit, results []model.Result, emittedAt time.Time) []model.Command

// Pool is the bounded worker pool for one site (concurrency 2-4).
type Pool struct {
	Concurrency int
	ReserveWait time.Duration
	SiteID      int

	Queue     Queue
	Registry  *registry.Registry
	Metrics   MetricSource
	Settings  SettingsSource
	State     StateStore
	Host      LogicHost
	Writer    CommandWriter
	InFlight  InFlightClearer
	Extract   Extractor
	Timeline  *timeline.Store
}

func (p *Pool) record(unitID, jobKey string, stage timeline.Stage) {
	if p.Timeline == nil {
		return
	}
	p.Timeline.Record(timeline.Event{UnitID: unitID, JobKey: jobKey, Stage: stage})
}

// Run blocks, running Concurrency worker goroutines until ctx is
// cancelled. Each goroutine finishes its current job before exiting.
func (p *Pool) Run(ctx context.Context) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	done := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		consumerID := fmt.Sprintf("worker-%d", i)
		go func() {
			p.loop(ctx, consumerID)
			done <- struct{}{}
		}()
	}
	for i := 0; i < concurrency; i++ {
		<-done
	}
}

func (p *Pool) loop(ctx context.Context, consumerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.Queue.Reserve(ctx, consumerID, p.ReserveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %s: reserve: %v", consumerID, err)
			continue
		}
		if job == nil {
			continue
		}

		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job *model.Job) {
	if job.SiteID != p.SiteID {
		log.Printf("worker: job %q site %d does not match pool site %d, acking as no-op", job.Key, job.SiteID, p.SiteID)
		_ = p.Queue.Ack(ctx, job.Key)
		p.InFlight.ClearInFlight(job.Key)
		return
	}

	unit, ok := p.Registry.Lookup(job.UnitID)
	if !ok {
		log.Printf("worker: unit %q no longer in registry, failing job %q (the queue's retry policy still applies)", job.UnitID, job.Key)
		_ = p.Queue.Fail(ctx, job.Key, fmt.Errorf("unit %q not registered", job.UnitID))
		p.InFlight.ClearInFlight(job.Key)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, unit.GateTimeout)
	defer cancel()

	p.record(unit.ID, job.Key, timeline.StageReserved)

	start := time.Now()
	err := p.runJob(runCtx, unit, job.Key)
	observability.JobRuntime.WithLabelValues(string(unit.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Printf("worker: job %q failed: %v", job.Key, err)
		observability.JobOutcomes.WithLabelValues(string(unit.Kind), "fail").Inc()
		p.record(unit.ID, job.Key, timeline.StageFailed)
		_ = p.Queue.Fail(ctx, job.Key, err)
		p.InFlight.ClearInFlight(job.Key)
		return
	}

	observability.JobOutcomes.WithLabelValues(string(unit.Kind), "ack").Inc()
	p.record(unit.ID, job.Key, timeline.StageCommitted)
	_ = p.Queue.Ack(ctx, job.Key)
	p.InFlight.ClearInFlight(job.Key)
}

func (p *Pool) runJob(ctx context.Context, unit registry.EquipmentUnit, jobKey string) error {
	metrics, err := p.Metrics.FetchSnapshot(ctx, unit.ID, unit.SiteID)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}
	settings, err := p.Settings.FetchSettings(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("fetch settings: %w", err)
	}
	st, err := p.State.Get(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	p.record(unit.ID, jobKey, timeline.StageInvoked)
	results, err := p.Host.Invoke(ctx, unit, metrics, settings, st)
	if err != nil {
		return fmt.Errorf("invoke logic: %w", err)
	}

	now := time.Now()
	commands := p.Extract(unit, results, now)
	if err := p.Writer.Write(ctx, commands); err != nil {
		return fmt.Errorf("write commands: %w", err)
	}

	st.LastInvocationAt = now
	if ok, err := p.State.CompareAndSet(ctx, unit.ID, st); err != nil {
		return fmt.Errorf("persist state: %w", err)
	} else if !ok {
		// A concurrent writer updated state first; per-unit dedup should
		// make this unreachable, but surface it rather than silently drop.
		return fmt.Errorf("state version conflict for unit %q", unit.ID)
	}
	return nil
}
