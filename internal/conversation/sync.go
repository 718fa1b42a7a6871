// Package conversation keeps chat threads in the cache and sends messages
// optimistically. A failed send disappears from the thread and is kept aside
// with its original text so it can be retried or discarded.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/colthorp/nutrisync-cli-go/internal/cache"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
	"github.com/colthorp/nutrisync-cli-go/internal/keys"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/optimistic"
)

// OpSendMessage names the send mutation.
const OpSendMessage = "sendMessage"

// API is the chat part of the backend.
type API interface {
	SendMessage(ctx context.Context, conversationID, content string) (models.SendResult, error)
}

// SendInput is the payload of a send, kept for retries.
type SendInput struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// FailedMessage is a send that was rolled back.
type FailedMessage struct {
	TempID         string    `json:"tempId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Err            error     `json:"-"`
	FailedAt       time.Time `json:"failedAt"`
}

// Sync sends messages and tracks failed sends.
type Sync struct {
	api   API
	co    *optimistic.Coordinator
	cache *cache.Cache
	now   func() time.Time
	log   zerolog.Logger

	mu     sync.Mutex
	failed map[string]FailedMessage
}

// Option configures a Sync.
type Option func(*Sync)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sync) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sync) { s.log = l }
}

// New creates a Sync over the coordinator's cache.
func New(api API, co *optimistic.Coordinator, opts ...Option) *Sync {
	s := &Sync{
		api:    api,
		co:     co,
		cache:  co.Cache(),
		now:    time.Now,
		log:    log.Logger.With().Str("component", "conversation").Logger(),
		failed: make(map[string]FailedMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Messages returns the thread, loading it when absent or stale.
func (s *Sync) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, core.Invalid("conversationId", "is required")
	}
	v, err := s.cache.Fetch(ctx, keys.MessagesKey(conversationID))
	if err != nil {
		return nil, err
	}
	msgs, _ := v.([]models.Message)
	return msgs, nil
}

func validateSend(conversationID, content string) error {
	if strings.TrimSpace(conversationID) == "" {
		return core.Invalid("conversationId", "is required")
	}
	if strings.TrimSpace(content) == "" {
		return core.Invalid("content", "message is empty")
	}
	if n := len([]rune(content)); n > core.MaxMessageLength {
		return core.Invalid("content", "message is %d characters, the limit is %d", n, core.MaxMessageLength)
	}
	return nil
}

// SendMessage appends a pending user message at the tail of the thread. On
// success the pending entry becomes the server's message in place and the
// assistant's reply, if any, follows it.
func (s *Sync) SendMessage(ctx context.Context, conversationID, content string) (*optimistic.Mutation[models.SendResult], error) {
	if err := validateSend(conversationID, content); err != nil {
		return nil, err
	}
	sentAt := s.now().UTC()

	return optimistic.Run(ctx, s.co, optimistic.Plan[models.SendResult]{
		Op:    OpSendMessage,
		Input: SendInput{ConversationID: conversationID, Content: content},
		Keys: []optimistic.KeyOp[models.SendResult]{{
			Key: keys.MessagesKey(conversationID),
			Apply: func(cur any, tempID string) any {
				msgs, _ := cur.([]models.Message)
				return append(clone(msgs), models.Message{
					ID:             tempID,
					ConversationID: conversationID,
					Sender:         models.SenderUser,
					Content:        content,
					CreatedAt:      sentAt,
					Pending:        true,
				})
			},
			Commit: func(cur any, tempID string, r models.SendResult) any {
				msgs, _ := cur.([]models.Message)
				return confirm(msgs, tempID, r)
			},
			Revert: func(cur any, tempID string) any {
				msgs, _ := cur.([]models.Message)
				return without(msgs, tempID)
			},
		}},
		Send: func(ctx context.Context, _ string) (models.SendResult, error) {
			return s.api.SendMessage(ctx, conversationID, content)
		},
		OnError: func(merr *optimistic.Error) {
			s.mu.Lock()
			s.failed[merr.TempID] = FailedMessage{
				TempID:         merr.TempID,
				ConversationID: conversationID,
				Content:        content,
				Err:            merr.Err,
				FailedAt:       s.now().UTC(),
			}
			s.mu.Unlock()
		},
	}), nil
}

// Failed lists the failed sends of a conversation, oldest first. An empty id
// lists every conversation.
func (s *Sync) Failed(conversationID string) []FailedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FailedMessage
	for _, f := range s.failed {
		if conversationID == "" || f.ConversationID == conversationID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].TempID < out[j].TempID
		}
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	return out
}

// Retry sends a failed message again with its original text.
func (s *Sync) Retry(ctx context.Context, tempID string) (*optimistic.Mutation[models.SendResult], error) {
	s.mu.Lock()
	f, ok := s.failed[tempID]
	if ok {
		delete(s.failed, tempID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("failed message %s: %w", tempID, core.ErrEntityNotFound)
	}
	s.log.Debug().Str("tempId", tempID).Str("conversationId", f.ConversationID).Msg("retrying message")
	return s.SendMessage(ctx, f.ConversationID, f.Content)
}

// Discard forgets a failed message.
func (s *Sync) Discard(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.failed[tempID]
	delete(s.failed, tempID)
	return ok
}

func clone(msgs []models.Message) []models.Message {
	return append(make([]models.Message, 0, len(msgs)+2), msgs...)
}

func indexOf(msgs []models.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func without(msgs []models.Message, id string) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// confirm swaps the pending message for the server's copy and appends the
// assistant reply. Messages already in the thread are not added twice.
func confirm(msgs []models.Message, tempID string, r models.SendResult) []models.Message {
	user := r.UserMessage
	user.Pending = false
	out := clone(msgs)

	switch at, dup := indexOf(out, tempID), indexOf(out, user.ID); {
	case dup >= 0 && at >= 0 && dup != at:
		out[dup] = user
		out = without(out, tempID)
	case at >= 0:
		out[at] = user
	case dup >= 0:
		out[dup] = user
	default:
		out = append(out, user)
	}

	if a := r.AssistantMessage; a != nil && indexOf(out, a.ID) < 0 {
		out = append(out, *a)
	}
	return out
}
