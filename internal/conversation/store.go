// Package conversation keeps per-conversation chat history in memory.
package conversation

import (
	"sync"
	"time"

	"finrag/internal/llm"
)

// maxMessages caps how much history one conversation retains. Older turns
// are dropped from the front once the cap is hit.
const maxMessages = 20

// Turn is one stored message with its timestamp.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds conversation histories keyed by conversation ID.
// Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	conversations map[string][]Turn
	now           func() time.Time
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string][]Turn),
		now:           time.Now,
	}
}

// Append adds a message to the conversation, trimming the oldest turns when
// the history exceeds the cap.
func (s *Store) Append(conversationID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.conversations[conversationID], Turn{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	if len(turns) > maxMessages {
		turns = turns[len(turns)-maxMessages:]
	}
	s.conversations[conversationID] = turns
}

// History returns a copy of the full stored history for the conversation.
// Unknown IDs yield an empty slice.
func (s *Store) History(conversationID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.conversations[conversationID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Recent returns the last n turns as LLM messages, oldest first, ready to
// prepend to a chat request.
func (s *Store) Recent(conversationID string, n int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.conversations[conversationID]
	if n < len(turns) {
		turns = turns[len(turns)-n:]
	}

	messages := make([]llm.Message, len(turns))
	for i, turn := range turns {
		messages[i] = llm.Message{Role: turn.Role, Content: turn.Content}
	}
	return messages
}

// Clear removes the conversation's history. Clearing an unknown ID is a
// no-op and reports false.
func (s *Store) Clear(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return false
	}
	delete(s.conversations, conversationID)
	return true
}

// IDs returns all conversation IDs with stored history.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	return ids
}
