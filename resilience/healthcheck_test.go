package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyPinger struct {
	fail atomic.Bool
}

func (f *flakyPinger) Ping(context.Context) error {
	if f.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestRunHealthChecksMarksUnavailableThenRecovers(t *testing.T) {
	d := NewDegradedMode()
	queue := &flakyPinger{}
	queue.fail.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunHealthChecks(ctx, d, queue, nil, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for d.Available() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if d.Available() {
		t.Fatalf("expected queue marked unavailable")
	}

	queue.fail.Store(false)
	deadline = time.Now().Add(time.Second)
	for !d.Available() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !d.Available() {
		t.Fatalf("expected queue to recover once pings succeed")
	}
}

func TestRunHealthChecksSkipsNilPingers(t *testing.T) {
	d := NewDegradedMode()

	ctx, cancel := context.WithCancel(context.Background())
	go RunHealthChecks(ctx, d, nil, nil, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	if !d.Available() || !d.StoreAvailable() {
		t.Fatalf("expected nil pingers to leave availability untouched")
	}
}
