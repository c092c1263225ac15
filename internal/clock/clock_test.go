package clock

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAdvanceMovesNow(t *testing.T) {
	f := NewFake(t0)
	if !f.Now().Equal(t0) {
		t.Fatalf("now = %s; want %s", f.Now(), t0)
	}
	f.Advance(90 * time.Second)
	if !f.Now().Equal(t0.Add(90 * time.Second)) {
		t.Fatalf("now = %s after advance", f.Now())
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	f := NewFake(t0)
	ch := f.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	f.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	f.Advance(30 * time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	f := NewFake(t0)
	select {
	case <-f.After(0):
	case <-time.After(time.Second):
		t.Fatal("zero-duration timer did not fire")
	}
}

func TestFakeSleepUnblocksWaiters(t *testing.T) {
	f := NewFake(t0)
	done := make(chan struct{})
	go func() {
		f.Sleep(time.Minute)
		close(done)
	}()

	// Give the sleeper time to register its waiter.
	time.Sleep(10 * time.Millisecond)
	f.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep never returned")
	}
}
