package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// loopback is an in-process Broadcaster shared by several Books.
type loopback struct {
	mu        sync.Mutex
	listeners []func(string)
	published []string
}

func (lb *loopback) Publish(_ context.Context, payload string) error {
	lb.mu.Lock()
	lb.published = append(lb.published, payload)
	fns := append([]func(string){}, lb.listeners...)
	lb.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
	return nil
}

func (lb *loopback) Listen(ctx context.Context, fn func(string)) error {
	lb.mu.Lock()
	lb.listeners = append(lb.listeners, fn)
	lb.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (lb *loopback) listening(n int) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		lb.mu.Lock()
		got := len(lb.listeners)
		lb.mu.Unlock()
		if got >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestBookReusesHeldLedgers(t *testing.T) {
	b := NewBook(NewMemoryBackend(), nil)
	l1, release1 := b.Acquire("p1")
	defer release1()
	l2, release2 := b.Acquire("p1")
	defer release2()

	if l1 != l2 || b.For("p1") != l1 {
		t.Error("expected the same ledger for the same owner")
	}
	if b.For("p2") == l1 {
		t.Error("expected distinct ledgers per owner")
	}
}

func TestBookDropsReleasedLedgers(t *testing.T) {
	b := NewBook(NewMemoryBackend(), nil)

	for i := 0; i < 1000; i++ {
		b.For(fmt.Sprintf("anon-%d", i)).IsUnlocked(context.Background(), "x")
	}
	if n := b.Len(); n != 0 {
		t.Errorf("expected transient ledgers not to be retained, got %d", n)
	}

	l, release1 := b.Acquire("p1")
	_, release2 := b.Acquire("p1")
	release1()
	release1()
	if b.Len() != 1 {
		t.Fatalf("expected ledger held while a reference remains, got %d", b.Len())
	}
	release2()
	if b.Len() != 0 {
		t.Errorf("expected ledger dropped after last release, got %d", b.Len())
	}

	again, release3 := b.Acquire("p1")
	defer release3()
	if again == l {
		t.Error("expected a fresh ledger after the old one was dropped")
	}
}

func TestBookRelaysRemoteChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := NewMemoryBackend()
	lb := &loopback{}
	local := NewBook(backend, lb)
	remote := NewBook(backend, lb)

	errs := make(chan error, 2)
	go func() { errs <- local.Listen(ctx) }()
	go func() { errs <- remote.Listen(ctx) }()
	if !lb.listening(2) {
		t.Fatal("listeners did not start")
	}

	p1, release1 := local.Acquire("p1")
	defer release1()
	p2, release2 := local.Acquire("p2")
	defer release2()
	ch, unsub := p1.Subscribe()
	defer unsub()
	other, unsubOther := p2.Subscribe()
	defer unsubOther()

	remote.For("p1").Unlock(ctx, "x")

	if !received(ch) {
		t.Fatal("expected remote unlock to notify the local subscriber")
	}
	select {
	case <-other:
		t.Error("expected other owners not to be notified")
	default:
	}
	if !local.For("p1").IsUnlocked(ctx, "x") {
		t.Error("expected the shared backend to show the unlock")
	}

	cancel()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	}
}

func TestBookIgnoresOwnPublications(t *testing.T) {
	lb := &loopback{}
	b := NewBook(NewMemoryBackend(), lb)
	l, release := b.Acquire("p1")
	defer release()
	ch, unsub := l.Subscribe()
	defer unsub()

	// Delivering our own payload must not produce a second signal.
	b.deliver(b.instance + "|p1")
	select {
	case <-ch:
		t.Error("expected own publication to be ignored")
	default:
	}

	b.deliver("malformed")
	b.deliver("other-instance|p1")
	if !received(ch) {
		t.Error("expected foreign publication to notify")
	}
}

func TestBookListenWithoutBroadcaster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewBook(NewMemoryBackend(), nil).Listen(ctx); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
