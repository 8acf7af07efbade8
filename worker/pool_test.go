package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brightloop/sitecore/model"
	"github.com/brightloop/sitecore/registry"
	"github.com/brightloop/sitecore/timeline"
)

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []model.Job
	acked   []string
	failed  []string
}

func (q *fakeQueue) Reserve(_ context.Context, _ string, _ time.Duration) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *fakeQueue) Ack(_ context.Context, jobKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobKey)
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, jobKey string, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, jobKey)
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) FetchSnapshot(_ context.Context, unitID string, siteID int) (model.MetricSnapshot, error) {
	return model.MetricSnapshot{UnitID: unitID, SiteID: siteID}, nil
}

type fakeSettings struct{}

func (fakeSettings) FetchSettings(_ context.Context, unitID string) (model.SettingsBundle, error) {
	return model.SettingsBundle{UnitID: unitID}, nil
}

type fakeState struct {
	mu   sync.Mutex
	sets int
}

func (s *fakeState) Get(_ context.Context, unitID string) (model.UnitState, error) {
	return model.UnitState{UnitID: unitID}, nil
}

func (s *fakeState) CompareAndSet(_ context.Context, _ string, _ model.UnitState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	return true, nil
}

type fakeHost struct {
	err error
}

func (h *fakeHost) Invoke(_ context.Context, _ registry.EquipmentUnit, _ model.MetricSnapshot, _ model.SettingsBundle, _ model.UnitState) ([]model.Result, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []model.Result{{Fields: map[string]model.CommandValue{"coolingValvePosition": model.Number(50)}}}, nil
}

type fakeWriter struct {
	mu       sync.Mutex
	commands []model.Command
}

func (w *fakeWriter) Write(_ context.Context, commands []model.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commands = append(w.commands, commands...)
	return nil
}

type fakeInFlight struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeInFlight) ClearInFlight(jobKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, jobKey)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(
		registry.Site{ID: 1, Name: "hq"},
		[]registry.UnitConfig{{ID: "fc-1", Kind: registry.KindFanCoil, LogicModule: "fan-coil"}},
		nil,
		map[string]bool{"fan-coil": true},
	)
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	return reg
}

func TestPoolProcessSuccessAcksAndClears(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{Key: "1-fc-1-fan-coil", SiteID: 1, UnitID: "fc-1", Kind: string(registry.KindFanCoil)}}}
	st := &fakeState{}
	writer := &fakeWriter{}
	inFlight := &fakeInFlight{}

	p := &Pool{
		Concurrency: 1,
		ReserveWait: 10 * time.Millisecond,
		SiteID:      1,
		Queue:       q,
		Registry:    testRegistry(t),
		Metrics:     fakeMetrics{},
		Settings:    fakeSettings{},
		State:       st,
		Host:        &fakeHost{},
		Writer:      writer,
		InFlight:    inFlight,
		Extract: func(unit registry.EquipmentUnit, results []model.Result, emittedAt time.Time) []model.Command {
			var out []model.Command
			for _, r := range results {
				for name, v := range r.Fields {
					out = append(out, model.Command{EquipmentID: unit.ID, CommandType: name, Value: v})
				}
			}
			return out
		},
	}

	job, _ := q.Reserve(context.Background(), "c", 0)
	p.process(context.Background(), job)

	if len(q.acked) != 1 || q.acked[0] != "1-fc-1-fan-coil" {
		t.Fatalf("expected job acked, got %+v", q.acked)
	}
	if len(inFlight.cleared) != 1 {
		t.Fatalf("expected in-flight key cleared, got %+v", inFlight.cleared)
	}
	if len(writer.commands) != 1 {
		t.Fatalf("expected one command written, got %+v", writer.commands)
	}
	if st.sets != 1 {
		t.Fatalf("expected state persisted once, got %d", st.sets)
	}
}

func TestPoolProcessRecordsTimelineStages(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{Key: "1-fc-1-fan-coil", SiteID: 1, UnitID: "fc-1", Kind: string(registry.KindFanCoil)}}}
	ts := timeline.NewStore()

	p := &Pool{
		Concurrency: 1,
		ReserveWait: 10 * time.Millisecond,
		SiteID:      1,
		Queue:       q,
		Registry:    testRegistry(t),
		Metrics:     fakeMetrics{},
		Settings:    fakeSettings{},
		State:       &fakeState{},
		Host:        &fakeHost{},
		Writer:      &fakeWriter{},
		InFlight:    &fakeInFlight{},
		Extract:     func(registry.EquipmentUnit, []model.Result, time.Time) []model.Command { return nil },
		Timeline:    ts,
	}

	job, _ := q.Reserve(context.Background(), "c", 0)
	p.process(context.Background(), job)

	events := ts.ForUnit("fc-1")
	if len(events) != 3 {
		t.Fatalf("expected reserved+invoked+committed events, got %+v", events)
	}
	stages := []timeline.Stage{events[0].Stage, events[1].Stage, events[2].Stage}
	want := []timeline.Stage{timeline.StageReserved, timeline.StageInvoked, timeline.StageCommitted}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("unexpected stage order: %+v", stages)
		}
	}
}

func TestPoolProcessFailureFailsJobAndClears(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{Key: "1-fc-1-fan-coil", SiteID: 1, UnitID: "fc-1"}}}
	inFlight := &fakeInFlight{}

	p := &Pool{
		Concurrency: 1,
		ReserveWait: 10 * time.Millisecond,
		SiteID:      1,
		Queue:       q,
		Registry:    testRegistry(t),
		Metrics:     fakeMetrics{},
		Settings:    fakeSettings{},
		State:       &fakeState{},
		Host:        &fakeHost{err: errors.New("boom")},
		Writer:      &fakeWriter{},
		InFlight:    inFlight,
		Extract:     func(registry.EquipmentUnit, []model.Result, time.Time) []model.Command { return nil },
	}

	job, _ := q.Reserve(context.Background(), "c", 0)
	p.process(context.Background(), job)

	if len(q.failed) != 1 {
		t.Fatalf("expected job failed, got %+v", q.failed)
	}
	if len(inFlight.cleared) != 1 {
		t.Fatalf("expected in-flight key cleared on failure, got %+v", inFlight.cleared)
	}
}

func TestPoolProcessSiteMismatchAcksWithoutRunning(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{Key: "2-fc-1-fan-coil", SiteID: 2, UnitID: "fc-1", Kind: string(registry.KindFanCoil)}}}
	inFlight := &fakeInFlight{}
	host := &fakeHost{}

	p := &Pool{
		SiteID:   1,
		Queue:    q,
		Registry: testRegistry(t),
		Metrics:  fakeMetrics{},
		Settings: fakeSettings{},
		State:    &fakeState{},
		Host:     host,
		Writer:   &fakeWriter{},
		InFlight: inFlight,
		Extract:  func(registry.EquipmentUnit, []model.Result, time.Time) []model.Command { return nil },
	}

	job, _ := q.Reserve(context.Background(), "c", 0)
	p.process(context.Background(), job)

	if len(q.acked) != 1 || q.acked[0] != "2-fc-1-fan-coil" {
		t.Fatalf("expected mismatched job acked as no-op, got %+v", q.acked)
	}
	if len(q.failed) != 0 {
		t.Fatalf("expected no failure recorded for site mismatch, got %+v", q.failed)
	}
	if len(inFlight.cleared) != 1 {
		t.Fatalf("expected in-flight key cleared, got %+v", inFlight.cleared)
	}
}

func TestPoolProcessUnknownUnitFailsWithoutRetryHint(t *testing.T) {
	q := &fakeQueue{jobs: []model.Job{{Key: "1-missing-fan-coil", SiteID: 1, UnitID: "missing"}}}
	inFlight := &fakeInFlight{}

	p := &Pool{
		SiteID:   1,
		Queue:    q,
		Registry: testRegistry(t),
		InFlight: inFlight,
	}

	job, _ := q.Reserve(context.Background(), "c", 0)
	p.process(context.Background(), job)

	if len(q.failed) != 1 {
		t.Fatalf("expected job failed for unknown unit, got %+v", q.failed)
	}
	if len(inFlight.cleared) != 1 {
		t.Fatalf("expected in-flight key cleared, got %+v", inFlight.cleared)
	}
}
