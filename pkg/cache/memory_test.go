package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewMemoryStore_Validation(t *testing.T) {
	if _, err := NewMemoryStore(0, time.Minute); err == nil {
		t.Error("expected error for zero max entries")
	}
	if _, err := NewMemoryStore(10, 0); err == nil {
		t.Error("expected error for zero retention")
	}
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store, err := NewMemoryStore(10, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := Key{Method: "GET", Path: "/products/1"}
	entry := &Entry{Data: []byte(`{"id": "1"}`), Expires: time.Now().Add(time.Minute)}

	if err := store.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != `{"id": "1"}` {
		t.Errorf("Data = %s", got.Data)
	}

	// Returned entries are copies.
	got.Data[0] = 'x'
	again, _ := store.Get(ctx, key)
	if again.Data[0] != '{' {
		t.Error("store returned shared entry data")
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, _ := NewMemoryStore(2, time.Hour)
	defer store.Close()
	ctx := context.Background()

	fresh := func() *Entry { return &Entry{Data: []byte("x"), Expires: time.Now().Add(time.Minute)} }
	a, b, c := Key{Path: "/a"}, Key{Path: "/b"}, Key{Path: "/c"}

	store.Set(ctx, a, fresh())
	store.Set(ctx, b, fresh())
	store.Get(ctx, a) // a is now most recently used
	store.Set(ctx, c, fresh())

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
	if _, err := store.Get(ctx, b); !errors.Is(err, ErrCacheMiss) {
		t.Error("least recently used entry should be evicted")
	}
	if _, err := store.Get(ctx, a); err != nil {
		t.Errorf("recently used entry evicted: %v", err)
	}
}

func TestMemoryStore_SkipsAndDropsUnretainedEntries(t *testing.T) {
	store, _ := NewMemoryStore(10, time.Hour)
	defer store.Close()
	ctx := context.Background()
	key := Key{Path: "/old"}

	store.Set(ctx, key, &Entry{Expires: time.Now().Add(-time.Second)})
	if store.Len() != 0 {
		t.Error("expired entry without retain window should not be stored")
	}

	entry := &Entry{Expires: time.Now().Add(20 * time.Millisecond)}
	store.Set(ctx, key, entry)
	time.Sleep(40 * time.Millisecond)

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss after retention", err)
	}
}
