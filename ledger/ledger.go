// Package ledger records which secret cards a player has revealed.
//
// The ledger is a flat JSON object {hashedKey: true} persisted as a single
// blob under StorageKey. Entries are only ever added. Persistence is
// best-effort: I/O failures are retried briefly, logged, and swallowed.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// StorageKey is the fixed key the ledger blob is stored under.
const StorageKey = "unlockedSecretCards"

// Backend persists opaque ledger blobs per owner. Load returns (nil, nil)
// when nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context, owner, key string) ([]byte, error)
	Save(ctx context.Context, owner, key string, value []byte) error
}

// Option configures a Ledger or Book.
type Option func(*options)

type options struct {
	hash       Hasher
	maxRetries uint64
	backoff    time.Duration
}

func defaultOptions() options {
	return options{hash: SHA256Key, maxRetries: 2, backoff: 50 * time.Millisecond}
}

// WithHasher replaces the SHA-256 key derivation.
func WithHasher(h Hasher) Option {
	return func(o *options) { o.hash = h }
}

// WithRetry sets how often a failed load or save is retried and the first backoff.
func WithRetry(maxRetries uint64, backoff time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.backoff = backoff
	}
}

// Ledger is one owner's unlock ledger.
type Ledger struct {
	owner   string
	backend Backend
	opts    options
	// published is called after every successful save; may be nil.
	published func(ctx context.Context)

	// writeMu serialises read-modify-write cycles within this process.
	writeMu sync.Mutex

	mu      sync.Mutex
	keys    map[string]string
	subs    map[int]chan struct{}
	nextSub int

	log *slog.Logger
}

// New returns a ledger for owner stored in backend.
func New(owner string, backend Backend, opts ...Option) *Ledger {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Ledger{
		owner:   owner,
		backend: backend,
		opts:    o,
		keys:    make(map[string]string),
		subs:    make(map[int]chan struct{}),
		log:     slog.With("tag", "ledger", "owner", owner),
	}
}

// Owner returns the player the ledger belongs to.
func (l *Ledger) Owner() string { return l.owner }

// Key returns the obfuscated key for a card identifier, falling back to the
// deterministic hash if the Hasher fails. Successful keys are cached.
func (l *Ledger) Key(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keyLocked(id)
}

func (l *Ledger) keyLocked(id string) string {
	if k, ok := l.keys[id]; ok {
		return k
	}
	k, err := l.opts.hash(id)
	if err != nil || k == "" {
		l.log.Warn("hashing card id failed, using fallback", "err", err)
		return FallbackKey(id)
	}
	l.keys[id] = k
	return k
}

// IsUnlocked reports whether the card has been unlocked. Absence, or a
// ledger that cannot be read, means locked.
func (l *Ledger) IsUnlocked(ctx context.Context, id string) bool {
	key := l.Key(id)
	entries, err := l.load(ctx)
	if err != nil {
		return false
	}
	return entries[key]
}

// Unlocked returns which of the given identifiers are unlocked.
func (l *Ledger) Unlocked(ctx context.Context, ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	entries, err := l.load(ctx)
	if err != nil {
		return out
	}
	for _, id := range ids {
		if entries[l.Key(id)] {
			out[id] = true
		}
	}
	return out
}

// Unlock marks a card unlocked, persists immediately and notifies subscribers.
func (l *Ledger) Unlock(ctx context.Context, id string) {
	l.UnlockMany(ctx, []string{id})
}

// UnlockMany marks several cards unlocked with a single save and a single notification.
func (l *Ledger) UnlockMany(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		// Saving over an unreadable ledger would drop its entries.
		l.log.Error("unlock skipped, ledger unreadable", "err", err, "cards", len(ids))
		return
	}
	for _, id := range ids {
		entries[l.Key(id)] = true
	}

	blob, err := json.Marshal(entries)
	if err != nil {
		l.log.Error("encoding ledger failed", "err", err)
		return
	}
	if err := l.withRetry(ctx, func(ctx context.Context) error {
		return l.backend.Save(ctx, l.owner, StorageKey, blob)
	}); err != nil {
		l.log.Error("saving ledger failed", "err", err)
		return
	}

	l.log.Info("cards unlocked", "cards", len(ids), "total", len(entries))
	l.notify()
	if l.published != nil {
		l.published(ctx)
	}
}

// Subscribe returns a channel that receives a value after every change. The
// channel holds one pending signal; bursts coalesce. Call cancel to unsubscribe.
func (l *Ledger) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// notify signals every subscriber without blocking.
func (l *Ledger) notify() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// load reads and decodes the persisted ledger. A corrupt blob reads as empty.
func (l *Ledger) load(ctx context.Context) (map[string]bool, error) {
	var blob []byte
	err := l.withRetry(ctx, func(ctx context.Context) error {
		var err error
		blob, err = l.backend.Load(ctx, l.owner, StorageKey)
		return err
	})
	if err != nil {
		l.log.Error("reading ledger failed", "err", err)
		return nil, err
	}

	entries := make(map[string]bool)
	if len(blob) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(blob, &entries); err != nil {
		l.log.Warn("ledger blob is corrupt, starting empty", "err", err)
		return make(map[string]bool), nil
	}
	return entries, nil
}

func (l *Ledger) withRetry(ctx context.Context, fn func(context.Context) error) error {
	base := l.opts.backoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.WithMaxRetries(l.opts.maxRetries, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
