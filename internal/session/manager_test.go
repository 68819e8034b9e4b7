package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireSerializesOneChat(t *testing.T) {
	m := NewManager(time.Minute)
	release, err := m.Acquire(context.Background(), "c1", "t1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	got, err := m.Get("c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ActiveTurnID != "t1" || got.Turns != 1 {
		t.Fatalf("unexpected chat state: %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, "c1", "t2"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
	}

	other, err := m.Acquire(context.Background(), "c2", "t3")
	if err != nil {
		t.Fatalf("Acquire(other chat) error = %v", err)
	}
	other()

	release()
	release()
	next, err := m.Acquire(context.Background(), "c1", "t4")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	next()
}

func TestAcquireWaitsForRelease(t *testing.T) {
	m := NewManager(time.Minute)
	release, err := m.Acquire(context.Background(), "c1", "t1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := m.Acquire(context.Background(), "c1", "t2")
		if err != nil {
			return
		}
		acquired.Store(true)
		r()
	}()

	time.Sleep(20 * time.Millisecond)
	if acquired.Load() {
		t.Fatalf("second turn ran while the first held the chat")
	}
	release()
	<-done
	if !acquired.Load() {
		t.Fatalf("second turn never acquired the chat")
	}
}

func TestJanitorExpiresIdleChats(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	release, err := m.Acquire(context.Background(), "idle", "t1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	busy, err := m.Acquire(context.Background(), "busy", "t2")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer busy()

	var expired atomic.Int32
	m.SetExpireHook(func(Chat) { expired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get("idle"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(idle) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get("busy"); err != nil {
		t.Fatalf("Get(busy) error = %v, want chat kept", err)
	}
	if expired.Load() != 1 {
		t.Fatalf("expired = %d, want 1", expired.Load())
	}
}
