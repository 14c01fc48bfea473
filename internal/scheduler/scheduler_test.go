package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type countingSweeper struct {
	noShows atomic.Int32
	expired atomic.Int32
	fail    bool
}

func (c *countingSweeper) SweepNoShows(ctx context.Context) (int, error) {
	c.noShows.Add(1)
	if c.fail {
		return 0, errors.New("store unavailable")
	}
	return 1, nil
}

func (c *countingSweeper) ExpireUnpaid(ctx context.Context) (int, error) {
	c.expired.Add(1)
	return 0, ctx.Err()
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSchedulerRunsBothSweeps(t *testing.T) {
	for _, fail := range []bool{false, true} {
		sw := &countingSweeper{fail: fail}
		s, err := New(sw, 20*time.Millisecond, time.UTC, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		s.Start()
		deadline := time.Now().Add(2 * time.Second)
		for (sw.noShows.Load() < 2 || sw.expired.Load() < 2) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
		if sw.noShows.Load() < 2 || sw.expired.Load() < 2 {
			t.Fatalf("fail=%v: expected repeated runs, got %d no-show and %d expiry sweeps", fail, sw.noShows.Load(), sw.expired.Load())
		}
		after := sw.noShows.Load()
		time.Sleep(60 * time.Millisecond)
		if sw.noShows.Load() != after {
			t.Fatalf("fail=%v: sweeps kept running after Stop", fail)
		}
	}
}

func TestNewRejectsNilSweeper(t *testing.T) {
	if _, err := New(nil, time.Second, nil, nil); err == nil {
		t.Fatal("expected an error for a nil sweeper")
	}
}
