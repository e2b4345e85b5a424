package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStorePutGet(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	ctx := context.Background()
	if err := fileStore.Put(ctx, "session", payload{Name: "livereview", Count: 3}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var got payload
	found, err := fileStore.Get(ctx, "session", &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() found = false, want true")
	}
	if got.Name != "livereview" || got.Count != 3 {
		t.Errorf("Get() = %+v", got)
	}

	found, err = fileStore.Get(ctx, "missing", &got)
	if err != nil {
		t.Fatalf("Get() missing key error = %v", err)
	}
	if found {
		t.Error("Get() missing key found = true, want false")
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := first.Put(ctx, "key", "value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	var got string
	found, err := second.Get(ctx, "key", &got)
	if err != nil || !found || got != "value" {
		t.Errorf("Get() after reopen = %q found=%v err=%v", got, found, err)
	}
}

func TestFileStoreMarkOnce(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	first, err := fileStore.MarkOnce(ctx, "delivery-1", time.Hour)
	if err != nil {
		t.Fatalf("MarkOnce() error = %v", err)
	}
	if !first {
		t.Error("first MarkOnce() = false, want true")
	}

	second, err := fileStore.MarkOnce(ctx, "delivery-1", time.Hour)
	if err != nil {
		t.Fatalf("MarkOnce() repeat error = %v", err)
	}
	if second {
		t.Error("repeat MarkOnce() = true, want false")
	}

	other, err := fileStore.MarkOnce(ctx, "delivery-2", time.Hour)
	if err != nil {
		t.Fatalf("MarkOnce() other key error = %v", err)
	}
	if !other {
		t.Error("MarkOnce() for a new key = false, want true")
	}
}

func TestFileStoreMarkOncePrunesExpired(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := fileStore.MarkOnce(ctx, "short", time.Millisecond); err != nil {
		t.Fatalf("MarkOnce() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	again, err := fileStore.MarkOnce(ctx, "short", time.Hour)
	if err != nil {
		t.Fatalf("MarkOnce() after expiry error = %v", err)
	}
	if !again {
		t.Error("MarkOnce() after expiry = false, want true")
	}
}

func TestFileStoreMarkOnceZeroTTL(t *testing.T) {
	t.Parallel()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	first, err := fileStore.MarkOnce(context.Background(), "nottl", 0)
	if err != nil {
		t.Fatalf("MarkOnce() error = %v", err)
	}
	if !first {
		t.Error("MarkOnce() with zero TTL should always report first")
	}
}
