package clock

import (
	"context"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	f.Advance(time.Second)

	if got := f.Now().Sub(start); got != 11*time.Second {
		t.Fatalf("expected 11s elapsed, got %s", got)
	}
	if sleeps := f.Sleeps(); len(sleeps) != 1 || sleeps[0] != 10*time.Second {
		t.Fatalf("unexpected sleeps %v", sleeps)
	}
}

func TestFakeSleepCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Sleep(ctx, time.Minute); err == nil {
		t.Fatal("cancelled context should abort sleep")
	}
	if !f.Now().Equal(time.Unix(0, 0)) {
		t.Fatal("time must not move on a cancelled sleep")
	}
}

func TestRealSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := New().Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context deadline error")
	}
}
