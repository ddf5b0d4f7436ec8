// Package chat answers questions about one transcript, keeping a bounded
// conversation history.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/types"
)

// MaxHistory is how many past messages are replayed to the model.
const MaxHistory = 20

var ErrEmptyMessage = errors.New("message is empty")

const systemTemplate = `You are a helpful assistant that answers questions about a video based on its transcript.

Here is the video transcript:
---
{transcript}
---

Instructions:
1. Answer questions based ONLY on the information in the transcript
2. If something is not covered in the transcript, say so
3. Be concise and helpful
4. Respond in the same language as the user's question
5. You can reference specific parts of the video by mentioning timestamps if available`

// Session is safe for concurrent use; turns are serialized.
type Session struct {
	llm        ports.LLM
	model      string
	transcript string
	maxHistory int

	mu      sync.Mutex
	history []types.ChatMessage
}

func NewSession(llm ports.LLM, transcript, model string) *Session {
	return &Session{llm: llm, model: model, transcript: transcript, maxHistory: MaxHistory}
}

// Send asks one question and records both turns.
func (s *Session) Send(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.request(message)
	if err != nil {
		return "", err
	}
	reply, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	s.remember(message, reply)
	return reply, nil
}

// Stream is Send with the reply delivered in chunks. Nothing is recorded
// when the stream fails.
func (s *Session) Stream(ctx context.Context, message string, onChunk func(string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.request(message)
	if err != nil {
		return err
	}
	var reply strings.Builder
	err = s.llm.Stream(ctx, req, func(chunk string) error {
		reply.WriteString(chunk)
		return onChunk(chunk)
	})
	if err != nil {
		return err
	}
	s.remember(message, reply.String())
	return nil
}

func (s *Session) History() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// Close releases the session's model client when it holds one.
func (s *Session) Close() error {
	if c, ok := s.llm.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) request(message string) (ports.Completion, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ports.Completion{}, ErrEmptyMessage
	}
	return ports.Completion{
		Prompt: s.prompt(message),
		System: strings.Replace(systemTemplate, "{transcript}", s.transcript, 1),
		Model:  s.model,
	}, nil
}

// prompt replays the last maxHistory messages before the new question.
func (s *Session) prompt(message string) string {
	if len(s.history) == 0 {
		return "User question: " + message
	}
	h := s.history
	if len(h) > s.maxHistory {
		h = h[len(h)-s.maxHistory:]
	}
	var b strings.Builder
	b.WriteString("\n\nPrevious conversation:\n")
	for _, m := range h {
		role := "Assistant"
		if m.Role == types.RoleUser {
			role = "User"
		}
		b.WriteString(role + ": " + m.Content + "\n")
	}
	b.WriteString("\n\nUser: " + message + "\n\nAssistant:")
	return b.String()
}

func (s *Session) remember(message, reply string) {
	s.history = append(s.history,
		types.ChatMessage{Role: types.RoleUser, Content: strings.TrimSpace(message)},
		types.ChatMessage{Role: types.RoleAssistant, Content: reply},
	)
}

// Registry holds live sessions by id for the lifetime of the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) Add(s *Session) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session and closes it. It reports false when id is unknown.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, s.Close()
}
