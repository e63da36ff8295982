package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/HugeFrog24/nini-artgallery/internal/storage"
	"github.com/HugeFrog24/nini-artgallery/internal/storage/memory"
	"github.com/HugeFrog24/nini-artgallery/internal/storage/sqlite"
)

func backends(t *testing.T) map[string]storage.TranscriptStore {
	t.Helper()
	sq, err := sqlite.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]storage.TranscriptStore{
		"sqlite": sq,
		"memory": memory.New(),
	}
}

func TestTranscriptStore_RecordAndRead(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv := &storage.Conversation{ID: "conv-1", TenantID: "nini", Locale: "de"}
			if err := store.EnsureConversation(ctx, conv); err != nil {
				t.Fatalf("EnsureConversation() error = %v", err)
			}
			// Second call is a no-op.
			if err := store.EnsureConversation(ctx, &storage.Conversation{ID: "conv-1", TenantID: "nini", Locale: "en"}); err != nil {
				t.Fatalf("EnsureConversation() repeat error = %v", err)
			}

			msgs := []*storage.StoredMessage{
				{ID: "m1", Role: "user", Content: "Make it dark"},
				{ID: "m2", Role: "assistant", Content: "Done!", ToolCalls: `[{"name":"setTheme"}]`},
			}
			for _, m := range msgs {
				if err := store.AddMessage(ctx, "conv-1", m); err != nil {
					t.Fatalf("AddMessage() error = %v", err)
				}
			}

			got, err := store.GetConversation(ctx, "conv-1")
			if err != nil {
				t.Fatalf("GetConversation() error = %v", err)
			}
			if got.Locale != "de" {
				t.Errorf("Locale = %q, want de", got.Locale)
			}
			if len(got.Messages) != 2 {
				t.Fatalf("Messages count = %d, want 2", len(got.Messages))
			}
			if got.Messages[0].ID != "m1" || got.Messages[1].ToolCalls != `[{"name":"setTheme"}]` {
				t.Errorf("Messages = %+v", got.Messages)
			}
		})
	}
}

func TestTranscriptStore_TenantIsolation(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.EnsureConversation(ctx, &storage.Conversation{ID: "a", TenantID: "nini", Locale: "en"})
			store.EnsureConversation(ctx, &storage.Conversation{ID: "b", TenantID: "ana", Locale: "en"})

			err := store.EnsureConversation(ctx, &storage.Conversation{ID: "a", TenantID: "ana", Locale: "en"})
			if !errors.Is(err, storage.ErrTenantMismatch) {
				t.Errorf("EnsureConversation(other tenant) error = %v, want ErrTenantMismatch", err)
			}

			list, err := store.ListConversations(ctx, storage.ListOptions{TenantID: "nini"})
			if err != nil {
				t.Fatalf("ListConversations() error = %v", err)
			}
			if len(list) != 1 || list[0].ID != "a" {
				t.Errorf("ListConversations() = %+v, want only a", list)
			}
		})
	}
}

func TestTranscriptStore_NotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("GetConversation() error = %v, want ErrNotFound", err)
			}
			if err := store.AddMessage(ctx, "missing", &storage.StoredMessage{ID: "x", Role: "user"}); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("AddMessage() error = %v, want ErrNotFound", err)
			}
			if err := store.DeleteConversation(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("DeleteConversation() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestTranscriptStore_Delete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.EnsureConversation(ctx, &storage.Conversation{ID: "d", TenantID: "nini", Locale: "en"})
			store.AddMessage(ctx, "d", &storage.StoredMessage{ID: "d1", Role: "user", Content: "hi"})
			if err := store.DeleteConversation(ctx, "d"); err != nil {
				t.Fatalf("DeleteConversation() error = %v", err)
			}
			if _, err := store.GetConversation(ctx, "d"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("GetConversation() after delete error = %v, want ErrNotFound", err)
			}
		})
	}
}
