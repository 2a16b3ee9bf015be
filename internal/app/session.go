package app

import "sync"

// Session holds the per-run client state: at most one active document
// and an append-only conversation seeded with the assistant greeting.
// All mutation goes through the upload and chat controllers; rendering
// code only reads.
type Session struct {
	mu       sync.Mutex
	document *Document
	messages []Message
}

func NewSession() *Session {
	return &Session{
		messages: []Message{newMessage(RoleAssistant, Greeting)},
	}
}

// ActiveDocument returns the current document, or nil when none is set.
func (s *Session) ActiveDocument() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.document == nil {
		return nil
	}
	d := *s.document
	return &d
}

func (s *Session) setDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = &doc
}

// AdoptDocument installs a reference the backend acknowledged in an
// earlier run, for one-shot commands that query by id.
func (s *Session) AdoptDocument(doc Document) {
	s.setDocument(doc)
}

func (s *Session) clearDocument() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// RetryLast removes the most recent message and, when the message now
// at the tail is a user message, returns its text so the caller can
// restore it into the input buffer. The user message itself stays in
// the transcript and nothing is resubmitted. No-op unless the
// conversation holds more than one message.
func (s *Session) RetryLast() (restored string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) <= 1 {
		return "", false
	}
	s.messages = s.messages[:len(s.messages)-1]
	if last := s.messages[len(s.messages)-1]; last.Role == RoleUser {
		return last.Content, true
	}
	return "", true
}
