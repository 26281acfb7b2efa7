package keeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerDelay(t *testing.T) {
	s := NewScheduler(nil, 30*time.Second, 5*time.Minute, nil, discardLogger())
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := s.delay(tt.failures); got != tt.want {
			t.Errorf("delay(%d) = %s, want %s", tt.failures, got, tt.want)
		}
	}
}

func TestSchedulerCountsFailures(t *testing.T) {
	fail := true
	s := NewScheduler(func(context.Context) error {
		if fail {
			return errors.New("rpc down")
		}
		return nil
	}, time.Second, time.Minute, nil, discardLogger())

	ctx := context.Background()
	if n := s.runOnce(ctx); n != 1 {
		t.Fatalf("failures = %d", n)
	}
	if n := s.runOnce(ctx); n != 2 {
		t.Fatalf("failures = %d", n)
	}
	fail = false
	if n := s.runOnce(ctx); n != 0 {
		t.Fatalf("failures after success = %d", n)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	var ticks atomic.Int32
	ticked := make(chan struct{}, 1)
	s := NewScheduler(func(context.Context) error {
		ticks.Add(1)
		select {
		case ticked <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour, time.Hour, nil, discardLogger())

	reqCtx, cancel := context.WithCancel(context.Background())
	if !s.Start(reqCtx) {
		t.Fatal("Start returned false")
	}
	if s.Start(reqCtx) {
		t.Fatal("second Start should report already running")
	}
	cancel() // the loop must outlive the starting request

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	if !s.Running() {
		t.Fatal("not running after request context ended")
	}
	if !s.Stop() {
		t.Fatal("Stop returned false")
	}
	if s.Running() || s.Stop() {
		t.Fatal("still running after Stop")
	}
	if ticks.Load() != 1 {
		t.Errorf("ticks = %d", ticks.Load())
	}
}

func TestThrottle(t *testing.T) {
	c := newClock()
	th := NewThrottle(time.Minute, c.Now)

	if ok, _ := th.Allow(); !ok {
		t.Fatal("first call throttled")
	}
	c.Advance(20 * time.Second)
	ok, wait := th.Allow()
	if ok || wait != 40*time.Second {
		t.Fatalf("ok=%v wait=%s", ok, wait)
	}
	c.Advance(40 * time.Second)
	if ok, _ := th.Allow(); !ok {
		t.Fatal("throttled after interval")
	}
}

func TestDedup(t *testing.T) {
	c := newClock()
	d := NewDedup(30*time.Second, c.Now)

	if !d.Begin("1:0xabc") {
		t.Fatal("first Begin refused")
	}
	if d.Begin("1:0xabc") {
		t.Fatal("duplicate admitted")
	}
	if !d.Begin("2:0xabc") {
		t.Fatal("other key refused")
	}
	d.Release("1:0xabc")
	if !d.Begin("1:0xabc") {
		t.Fatal("released key refused")
	}
	c.Advance(30 * time.Second)
	if !d.Begin("2:0xabc") {
		t.Fatal("expired key refused")
	}
}
