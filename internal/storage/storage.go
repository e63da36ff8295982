// Package storage defines the chat transcript log and its backends.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("storage: conversation not found")

// Conversation is one visitor's chat session with a tenant's artist.
type Conversation struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenantId"`
	Locale    string          `json:"locale"`
	Messages  []StoredMessage `json:"messages,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StoredMessage is one recorded message. ToolCalls holds the JSON encoding of
// the tool calls the assistant emitted, if any.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolCalls string    `json:"toolCalls,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions selects conversations for one tenant.
type ListOptions struct {
	TenantID string
	Limit    int
	Offset   int
}

// TranscriptStore records chat sessions.
type TranscriptStore interface {
	// EnsureConversation creates conv unless a conversation with its ID
	// exists. An existing conversation of another tenant is an error.
	EnsureConversation(ctx context.Context, conv *Conversation) error
	AddMessage(ctx context.Context, convID string, msg *StoredMessage) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns conversations newest first, without messages.
	ListConversations(ctx context.Context, opts ListOptions) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	Close() error
}

// ErrTenantMismatch is returned when a conversation id is reused across tenants.
var ErrTenantMismatch = errors.New("storage: conversation belongs to another tenant")
