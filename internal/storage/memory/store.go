package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/HugeFrog24/nini-artgallery/internal/storage"
)

// Store is an in-memory implementation of storage.TranscriptStore.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*storage.Conversation
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		conversations: make(map[string]*storage.Conversation),
	}
}

func (s *Store) EnsureConversation(ctx context.Context, conv *storage.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.conversations[conv.ID]; ok {
		if existing.TenantID != conv.TenantID {
			return fmt.Errorf("%w: %s", storage.ErrTenantMismatch, conv.ID)
		}
		return nil
	}

	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	stored := *conv
	stored.Messages = nil
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *Store) AddMessage(ctx context.Context, convID string, msg *storage.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[convID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, convID)
	}

	msg.CreatedAt = time.Now().UTC()
	conv.Messages = append(conv.Messages, *msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	out := *conv
	out.Messages = slices.Clone(conv.Messages)
	return &out, nil
}

func (s *Store) ListConversations(ctx context.Context, opts storage.ListOptions) ([]*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Conversation
	for _, conv := range s.conversations {
		if conv.TenantID != opts.TenantID {
			continue
		}
		out := *conv
		out.Messages = nil
		result = append(result, &out)
	}
	slices.SortFunc(result, func(a, b *storage.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	start := opts.Offset
	if start >= len(result) {
		return []*storage.Conversation{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	delete(s.conversations, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}
