// Package transcript maintains the in-memory conversation view: the ordered
// list of user and assistant messages, their server-side identities, and any
// grammar corrections attached after the fact.
package transcript

import (
	"log/slog"
	"sync"
)

// Message is one entry in the conversation.
//
// User messages are appended optimistically before the backend confirms them:
// while the send is in flight ServerID is "" and the message is addressed by
// its Correlation instead. Once the backend replies, Reconcile stamps the
// server-assigned id and the message becomes eligible for grammar checking.
type Message struct {
	// ServerID is the backend's id for this message, or "" while the send is
	// still in flight (or when the send failed and never got one).
	ServerID string

	// Correlation is the client-local id assigned at append time. Unique per
	// process run; zero for hydrated and assistant messages.
	Correlation uint64

	// IsUser is true for the user's own messages, false for assistant replies.
	IsUser bool

	// Text is the message content.
	Text string

	// Corrected holds the grammar-checked rewrite of a user message, or "".
	Corrected string
}

// Confirmed reports whether the message has a server identity.
func (m Message) Confirmed() bool { return m.ServerID != "" }

// Exchange is one stored round trip loaded from the backend history: the
// user's message, the assistant's reply, and an optional correction.
type Exchange struct {
	ServerID  string
	UserText  string
	ReplyText string
	Corrected string
}

// Store holds the conversation in append order. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	messages []Message
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{}
}

// Hydrate replaces the conversation with the given history, oldest first.
// Each exchange expands to a confirmed user message followed by the
// assistant's reply.
func (s *Store) Hydrate(exchanges []Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	for _, ex := range exchanges {
		s.messages = append(s.messages, Message{
			ServerID:  ex.ServerID,
			IsUser:    true,
			Text:      ex.UserText,
			Corrected: ex.Corrected,
		})
		s.messages = append(s.messages, Message{
			Text: ex.ReplyText,
		})
	}
}

// AppendProvisional adds a user message that has not been confirmed by the
// backend yet. Returns its index in the conversation.
func (s *Store) AppendProvisional(correlation uint64, text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{
		Correlation: correlation,
		IsUser:      true,
		Text:        text,
	})
	return len(s.messages) - 1
}

// Reconcile stamps the server-assigned id onto the provisional user message
// with the given correlation. A miss (unknown correlation, or a message that
// was already reconciled) is a no-op; the response is simply too late to
// matter.
func (s *Store) Reconcile(correlation uint64, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.Correlation == correlation && m.IsUser && m.ServerID == "" {
			m.ServerID = serverID
			return true
		}
	}
	slog.Debug("transcript: reconcile miss", "correlation", correlation, "server_id", serverID)
	return false
}

// AppendAssistantReply adds an assistant message. Returns its index in the
// conversation.
func (s *Store) AppendAssistantReply(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Text: text})
	return len(s.messages) - 1
}

// AttachCorrection records the grammar-checked rewrite for the confirmed user
// message with the given server id. Assistant messages and provisional
// messages are never touched; an unknown id is a no-op.
func (s *Store) AttachCorrection(serverID, corrected string) bool {
	if serverID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		m := &s.messages[i]
		if m.IsUser && m.ServerID == serverID {
			m.Corrected = corrected
			return true
		}
	}
	slog.Debug("transcript: correction for unknown message", "server_id", serverID)
	return false
}

// Messages returns a snapshot of the conversation in append order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the conversation.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
