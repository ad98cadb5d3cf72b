// Package chat manages the per-workspace assistant transcript and drives
// streaming exchanges with the language model.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/mobilecoder/internal/assistant"
	"github.com/ashureev/mobilecoder/internal/domain"
	"github.com/ashureev/mobilecoder/internal/metrics"
	"github.com/ashureev/mobilecoder/internal/store"
)

var (
	ErrBusy           = errors.New("a reply is already streaming")
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrDisabled       = errors.New("assistant is not configured")
	ErrAssistantError = errors.New("assistant request failed")
)

// Manager hands out one Session per device.
type Manager struct {
	repo     store.StateStore
	streamer assistant.Streamer
	log      ConversationLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. A nil streamer disables Submit.
func NewManager(repo store.StateStore, streamer assistant.Streamer, log ConversationLogger) *Manager {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Manager{
		repo:     repo,
		streamer: streamer,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Enabled reports whether an assistant is configured.
func (m *Manager) Enabled() bool {
	return m.streamer != nil
}

// Session returns the device's session, loading its transcript on first use.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	s := &Session{
		userID:   userID,
		repo:     m.repo,
		streamer: m.streamer,
		log:      m.log,
		persona:  domain.DefaultPersona(),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	m.sessions[userID] = s
	return s, nil
}

// Evict drops a cached session so the next Session call reloads it.
func (m *Manager) Evict(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Close flushes the conversation log.
func (m *Manager) Close() error {
	return m.log.Close()
}

// Session is one device's transcript and persona.
type Session struct {
	userID   string
	repo     store.StateStore
	streamer assistant.Streamer
	log      ConversationLogger

	busy atomic.Bool

	mu      sync.Mutex
	turns   []domain.ChatTurn
	persona domain.Persona
}

// storedTurn accepts the "model" role older clients wrote for assistant turns.
type storedTurn struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

func (s *Session) load(ctx context.Context) error {
	raw, ok, err := s.repo.GetState(ctx, s.userID, store.KeyChat)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	if ok {
		var stored []storedTurn
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			slog.Error("Failed to decode stored chat, starting fresh", "user_id", s.userID, "error", err)
		} else {
			for _, t := range stored {
				role := domain.RoleAssistant
				if t.Role == string(domain.RoleUser) {
					role = domain.RoleUser
				}
				s.turns = append(s.turns, domain.ChatTurn{ID: t.ID, Role: role, Text: t.Text, IsError: t.IsError})
			}
		}
	}

	raw, ok, err = s.repo.GetState(ctx, s.userID, store.KeyPersona)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}
	if ok {
		var p domain.Persona
		if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Validate() != nil {
			slog.Error("Ignoring invalid stored persona", "user_id", s.userID, "error", err)
		} else {
			s.persona = p
		}
	}
	return nil
}

// Transcript returns a copy of the turns. An empty transcript yields the
// welcome turn for activeName.
func (s *Session) Transcript(activeName string) []domain.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return []domain.ChatTurn{WelcomeTurn(s.persona, activeName)}
	}
	return append([]domain.ChatTurn(nil), s.turns...)
}

// Busy reports whether a reply is streaming.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Clear resets the transcript to a single welcome turn.
func (s *Session) Clear(ctx context.Context, activeName string) ([]domain.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := []domain.ChatTurn{WelcomeTurn(s.persona, activeName)}
	if err := s.saveTurns(ctx, turns); err != nil {
		return nil, err
	}
	s.turns = turns
	return append([]domain.ChatTurn(nil), turns...), nil
}

// Persona returns the current persona.
func (s *Session) Persona() domain.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona validates and stores p. An empty avatar takes the default.
func (s *Session) SetPersona(ctx context.Context, p domain.Persona) (domain.Persona, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return domain.Persona{}, err
	}
	if strings.TrimSpace(p.AvatarURL) == "" {
		p.AvatarURL = domain.DefaultAvatarURL
	}
	data, err := json.Marshal(p)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("encode persona: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.PutState(ctx, s.userID, store.KeyPersona, string(data)); err != nil {
		return domain.Persona{}, fmt.Errorf("save persona: %w", err)
	}
	s.persona = p
	return p, nil
}

// SubmitRequest carries a question and the project context it is asked against.
type SubmitRequest struct {
	Question   string
	Files      []domain.FileNode
	ActiveName string
	SessionID  string
	RequestID  string
}

// Update is emitted for every streamed fragment.
type Update struct {
	TurnID string `json:"id"`
	Delta  string `json:"delta"`
	Text   string `json:"text"`
}

// Submit asks the assistant a question and streams the reply into the
// transcript. onUpdate, if set, is called after each fragment. On assistant
// failure the placeholder turn is replaced by an error turn, which is returned
// together with an error wrapping ErrAssistantError.
func (s *Session) Submit(ctx context.Context, req SubmitRequest, onUpdate func(Update)) (domain.ChatTurn, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return domain.ChatTurn{}, ErrEmptyQuestion
	}
	if s.streamer == nil {
		return domain.ChatTurn{}, ErrDisabled
	}
	if !s.busy.CompareAndSwap(false, true) {
		metrics.RecordChatStream("busy")
		return domain.ChatTurn{}, ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	history := append([]domain.ChatTurn(nil), s.turns...)
	persona := s.persona
	userTurn := domain.ChatTurn{ID: domain.NewID(), Role: domain.RoleUser, Text: question}
	next := append(append([]domain.ChatTurn(nil), s.turns...), userTurn)
	if err := s.saveTurns(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.ChatTurn{}, err
	}
	placeholder := domain.ChatTurn{ID: domain.NewID(), Role: domain.RoleAssistant}
	s.turns = append(next, placeholder)
	s.mu.Unlock()

	s.logEvent(req, "outbound", "chat_user_message", question, nil)

	prompt := BuildPrompt(persona, req.Files, history, req.ActiveName, question)
	tokens := assistant.PromptTokens(prompt)
	metrics.RecordPromptTokens(tokens)
	slog.Info("Assistant request", "user_id", s.userID, "prompt_tokens", tokens, "history_turns", len(history))

	var (
		running   strings.Builder
		chunks    int
		streamErr error
	)
	for fragment, err := range s.streamer.Stream(ctx, assistant.Request{Prompt: prompt, SystemInstruction: persona.SystemInstruction}) {
		if err != nil {
			streamErr = err
			break
		}
		chunks++
		running.WriteString(fragment)
		text := running.String()
		s.mu.Lock()
		s.setText(placeholder.ID, text)
		s.mu.Unlock()
		if onUpdate != nil {
			onUpdate(Update{TurnID: placeholder.ID, Delta: fragment, Text: text})
		}
	}

	// The reply is kept even if the caller went away mid-stream.
	saveCtx := context.WithoutCancel(ctx)
	if streamErr != nil {
		slog.Error("Assistant stream failed", "user_id", s.userID, "error", streamErr)
		metrics.RecordChatStream("error")
		errTurn := domain.ChatTurn{ID: domain.NewID(), Role: domain.RoleAssistant, Text: ErrorText(persona), IsError: true}

		s.mu.Lock()
		s.turns = s.without(placeholder.ID)
		s.turns = append(s.turns, errTurn)
		if err := s.saveTurns(saveCtx, s.turns); err != nil {
			slog.Warn("Failed to persist chat after error", "user_id", s.userID, "error", err)
		}
		s.mu.Unlock()

		s.logEvent(req, "inbound", "chat_assistant_message", running.String(), map[string]any{
			"stream_chunks": chunks,
			"partial":       true,
			"stream_error":  streamErr.Error(),
		})
		return errTurn, fmt.Errorf("%w: %w", ErrAssistantError, streamErr)
	}

	metrics.RecordChatStream("success")
	final := domain.ChatTurn{ID: placeholder.ID, Role: domain.RoleAssistant, Text: running.String()}
	s.mu.Lock()
	s.setText(placeholder.ID, final.Text)
	if err := s.saveTurns(saveCtx, s.turns); err != nil {
		slog.Warn("Failed to persist chat reply", "user_id", s.userID, "error", err)
	}
	s.mu.Unlock()

	s.logEvent(req, "inbound", "chat_assistant_message", final.Text, map[string]any{
		"stream_chunks": chunks,
		"partial":       false,
	})
	return final, nil
}

// setText must be called with s.mu held. A turn removed by Clear is ignored.
func (s *Session) setText(id, text string) {
	for i := range s.turns {
		if s.turns[i].ID == id {
			s.turns[i].Text = text
			return
		}
	}
}

// without must be called with s.mu held.
func (s *Session) without(id string) []domain.ChatTurn {
	out := make([]domain.ChatTurn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// saveTurns must be called with s.mu held.
func (s *Session) saveTurns(ctx context.Context, turns []domain.ChatTurn) error {
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	if err := s.repo.PutState(ctx, s.userID, store.KeyChat, string(data)); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (s *Session) logEvent(req SubmitRequest, direction, eventType, content string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["request_id"] = req.RequestID
	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     s.userID,
		SessionID:  req.SessionID,
		Channel:    "chat_http",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
