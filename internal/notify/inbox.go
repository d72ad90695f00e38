package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vyhan.org/internal/ids"
)

var ErrNotFound = errors.New("notify: message not found")

// Message is one inbox entry for a user.
type Message struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	TrackingID string    `json:"tracking_id,omitempty"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageStore persists inbox messages.
type MessageStore interface {
	Create(ctx context.Context, msg *Message) error
	ListByUser(ctx context.Context, userID string) ([]*Message, error)
	// MarkRead flips the read flag; ErrNotFound when the message does not
	// exist or belongs to another user.
	MarkRead(ctx context.Context, userID, messageID string) error
}

// Inbox exposes the per-user message surface.
type Inbox struct {
	store MessageStore
}

// NewInbox constructs the inbox service.
func NewInbox(store MessageStore) *Inbox {
	return &Inbox{store: store}
}

// List returns the user's messages, newest first.
func (i *Inbox) List(ctx context.Context, userID string) ([]*Message, error) {
	return i.store.ListByUser(ctx, userID)
}

// MarkRead marks one of the user's messages as read.
func (i *Inbox) MarkRead(ctx context.Context, userID, messageID string) error {
	return i.store.MarkRead(ctx, userID, messageID)
}

// InMemoryMessages is a process-local MessageStore.
type InMemoryMessages struct {
	mu       sync.RWMutex
	messages map[string]*Message
}

var _ MessageStore = (*InMemoryMessages)(nil)

// NewInMemoryMessages constructs an empty in-memory message store.
func NewInMemoryMessages() *InMemoryMessages {
	return &InMemoryMessages{messages: make(map[string]*Message)}
}

func (m *InMemoryMessages) Create(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = ids.New()
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *InMemoryMessages) ListByUser(_ context.Context, userID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Message
	for _, msg := range m.messages {
		if msg.UserID == userID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *InMemoryMessages) MarkRead(_ context.Context, userID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok || msg.UserID != userID {
		return ErrNotFound
	}
	msg.Read = true
	return nil
}
