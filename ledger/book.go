package ledger

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Broadcaster carries change notifications between server processes that
// share a backend.
type Broadcaster interface {
	Publish(ctx context.Context, payload string) error
	// Listen blocks, calling fn for every payload, until ctx is done.
	Listen(ctx context.Context, fn func(payload string)) error
}

// Book hands out one Ledger per owner over a shared backend and fans
// remote change notifications out to local subscribers. Only ledgers that
// are held through Acquire stay registered.
type Book struct {
	backend  Backend
	bc       Broadcaster
	opts     []Option
	instance string

	mu      sync.Mutex
	ledgers map[string]*heldLedger
}

type heldLedger struct {
	ledger *Ledger
	refs   int
}

// NewBook returns a Book over backend. bc may be nil, in which case
// notifications stay within this process.
func NewBook(backend Backend, bc Broadcaster, opts ...Option) *Book {
	return &Book{
		backend:  backend,
		bc:       bc,
		opts:     opts,
		instance: uuid.NewString(),
		ledgers:  make(map[string]*heldLedger),
	}
}

// Acquire returns the shared ledger for owner and registers it for change
// fan-out. Call release when done; the last release drops the ledger.
func (b *Book) Acquire(owner string) (l *Ledger, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.ledgers[owner]
	if !ok {
		h = &heldLedger{ledger: b.newLedger(owner)}
		b.ledgers[owner] = h
	}
	h.refs++

	var once sync.Once
	return h.ledger, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			h.refs--
			if h.refs == 0 && b.ledgers[owner] == h {
				delete(b.ledgers, owner)
			}
		})
	}
}

// For returns the held ledger for owner, or a transient one that is not
// retained. Use it for one-off reads and writes.
func (b *Book) For(owner string) *Ledger {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.ledgers[owner]; ok {
		return h.ledger
	}
	return b.newLedger(owner)
}

// Len returns the number of held ledgers.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ledgers)
}

func (b *Book) newLedger(owner string) *Ledger {
	l := New(owner, b.backend, b.opts...)
	if b.bc != nil {
		l.published = func(ctx context.Context) { b.publish(ctx, owner) }
	}
	return l
}

func (b *Book) publish(ctx context.Context, owner string) {
	if err := b.bc.Publish(ctx, b.instance+"|"+owner); err != nil {
		slog.Warn("publishing ledger change failed", "tag", "ledger", "owner", owner, "err", err)
	}
}

// Listen relays notifications published by other processes until ctx is
// done. Without a Broadcaster it simply waits for ctx.
func (b *Book) Listen(ctx context.Context) error {
	if b.bc == nil {
		<-ctx.Done()
		return nil
	}
	err := b.bc.Listen(ctx, b.deliver)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Book) deliver(payload string) {
	instance, owner, ok := strings.Cut(payload, "|")
	if !ok || instance == b.instance {
		return
	}

	b.mu.Lock()
	h, ok := b.ledgers[owner]
	b.mu.Unlock()
	if ok {
		h.ledger.notify()
	}
}
