package storage

import (
	"context"
	"path/filepath"
	"testing"

	"flipmatch-server/ledger"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	got, err := s.Load(ctx, "p1", ledger.StorageKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing blob, got %q", got)
	}

	if err := s.Save(ctx, "p1", ledger.StorageKey, []byte(`{"a":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(ctx, "p1", ledger.StorageKey, []byte(`{"a":true,"b":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ = s.Load(ctx, "p1", ledger.StorageKey)
	if string(got) != `{"a":true,"b":true}` {
		t.Errorf("expected last write to win, got %q", got)
	}

	other, _ := s.Load(ctx, "p2", ledger.StorageKey)
	if other != nil {
		t.Errorf("expected owners to be isolated, got %q", other)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ledger.New("p1", s).Unlock(ctx, "/assets/Illustration/cats/SECRET.mp4")
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	defer reopened.Close()

	if !ledger.New("p1", reopened).IsUnlocked(ctx, "/assets/Illustration/cats/SECRET.mp4") {
		t.Error("expected unlock to survive a reopen")
	}
}

func TestNewStoreWithoutURL(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil || s != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", s, err)
	}
}
