package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/engine"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// Session is the in-memory view of one conversation. It appends turns,
// drives generation through the engine manager behind the inference gate,
// and commits completed exchanges to the store.
//
// An exchange that fails at the engine leaves the user turn in memory but
// not in the store; the divergence persists until the next successful
// exchange or a restart. That trade-off is deliberate: the user turn is
// only durable together with its answer.
type Session struct {
	id        string
	userID    string
	createdAt time.Time

	// mu serializes exchanges on this session. Two concurrent submissions
	// queue here before either reaches the global gate, so persisted
	// history never interleaves within one session.
	mu            sync.Mutex
	history       []types.ChatMessage
	lastMessageAt *time.Time

	store   *store.Store
	engines *engine.Manager
	gate    *engine.Gate
	log     zerolog.Logger
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user's identifier.
func (s *Session) UserID() string { return s.userID }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastMessageAt returns the timestamp of the last completed exchange, or
// nil before the first one.
func (s *Session) LastMessageAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageAt
}

// History returns a copy of the in-memory message list.
func (s *Session) History() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// loadHistory populates the in-memory list from the store. Called once
// when the session object is materialized.
func (s *Session) loadHistory(ctx context.Context) error {
	rows, err := s.store.ListMessages(ctx, s.id)
	if err != nil {
		return err
	}
	msgs := make([]types.ChatMessage, len(rows))
	for i, r := range rows {
		msgs[i] = types.ChatMessage{Role: r.Role, Content: r.Content, Timestamp: r.Timestamp}
	}
	s.mu.Lock()
	s.history = msgs
	s.mu.Unlock()
	return nil
}

// AddMessage runs one synchronous exchange: append the user turn, generate
// a reply under the gate, append the assistant turn, and commit both turns
// as one transaction. On engine failure the user turn stays in memory,
// nothing is persisted, and the error propagates.
func (s *Session) AddMessage(ctx context.Context, prompt string) (types.ChatMessage, error) {
	if prompt == "" {
		return types.ChatMessage{}, ErrValidation("message content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior := append([]types.ChatMessage(nil), s.history...)
	userMsg := types.ChatMessage{Role: types.RoleUser, Content: prompt, Timestamp: time.Now().UTC()}
	s.history = append(s.history, userMsg)

	release, err := s.gate.Acquire(ctx)
	if err != nil {
		// Rejected before reaching the engine: take the turn back so a
		// retry does not duplicate it.
		s.history = s.history[:len(s.history)-1]
		return types.ChatMessage{}, err
	}
	defer release()

	content, err := s.engines.Generate(ctx, prompt, prior, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session", s.id).Msg("exchange failed, user turn not persisted")
		return types.ChatMessage{}, err
	}

	assistantMsg := types.ChatMessage{Role: types.RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
	s.history = append(s.history, assistantMsg)

	if err := s.store.AppendExchange(ctx, s.id, userMsg, assistantMsg); err != nil {
		s.log.Error().Err(err).Str("session", s.id).Msg("exchange generated but not persisted")
		return types.ChatMessage{}, err
	}
	s.lastMessageAt = &assistantMsg.Timestamp
	return assistantMsg, nil
}

// fragmentBuffer bounds how far the producer may run ahead of a slow
// consumer before generation blocks.
const fragmentBuffer = 32

// Stream is one single-use token stream. Consumers range over C; once C is
// closed, Err and Content report the terminal state. Fragments already
// received are never retracted, but a failed stream persists nothing.
type Stream struct {
	C <-chan string

	done    chan struct{}
	err     error
	content string
}

// Err reports how the stream ended. It blocks until the stream is finished.
func (st *Stream) Err() error {
	<-st.done
	return st.err
}

// Content returns the accumulated response text. It blocks until the
// stream is finished and is empty when the stream failed.
func (st *Stream) Content() string {
	<-st.done
	return st.content
}

// StreamMessage runs one streamed exchange. A producer goroutine holds the
// per-session lock and the gate for the whole stream and writes fragments
// into a bounded channel; channel closure always follows gate release,
// whatever the exit path. Persistence of the exchange happens after the
// final fragment, before the channel closes.
func (s *Session) StreamMessage(ctx context.Context, prompt string) (*Stream, error) {
	if prompt == "" {
		return nil, ErrValidation("message content is required")
	}

	out := make(chan string, fragmentBuffer)
	st := &Stream{C: out, done: make(chan struct{})}

	go func() {
		defer close(st.done)
		defer close(out)

		s.mu.Lock()
		defer s.mu.Unlock()

		prior := append([]types.ChatMessage(nil), s.history...)
		userMsg := types.ChatMessage{Role: types.RoleUser, Content: prompt, Timestamp: time.Now().UTC()}
		s.history = append(s.history, userMsg)

		release, err := s.gate.Acquire(ctx)
		if err != nil {
			s.history = s.history[:len(s.history)-1]
			st.err = err
			return
		}
		defer release()

		content, err := s.engines.Generate(ctx, prompt, prior, func(tok string) error {
			select {
			case out <- tok:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			// Fragments already delivered are not retracted; the partial
			// accumulation is discarded, not persisted.
			s.log.Warn().Err(err).Str("session", s.id).Msg("stream aborted, partial response discarded")
			st.err = err
			return
		}

		assistantMsg := types.ChatMessage{Role: types.RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
		s.history = append(s.history, assistantMsg)

		if err := s.store.AppendExchange(ctx, s.id, userMsg, assistantMsg); err != nil {
			s.log.Error().Err(err).Str("session", s.id).Msg("stream generated but not persisted")
			st.err = err
			return
		}
		s.lastMessageAt = &assistantMsg.Timestamp
		st.content = content
	}()

	return st, nil
}
