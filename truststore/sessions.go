package truststore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/kv"
)

// Session tracks one conversation's usage, stored as a hash at
// session:<id> so counters update without rewriting the record.
type Session struct {
	UserID         string
	ConversationID string
	MessageCount   int64
	TokenCount     int64
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Sessions manages conversation sessions.
type Sessions struct {
	kv    kv.Store
	clock clockwork.Clock
	ttl   time.Duration
}

// NewSessions builds a session store. ttl <= 0 defaults to 24h.
func NewSessions(store kv.Store, clock clockwork.Clock, ttl time.Duration) *Sessions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{kv: store, clock: clock, ttl: ttl}
}

func sessionKey(conversationID string) string {
	return "session:" + conversationID
}

// Create starts a session for the conversation.
func (s *Sessions) Create(ctx context.Context, conversationID, userID string) (*Session, error) {
	now := s.clock.Now().UTC()
	sess := &Session{
		UserID:         userID,
		ConversationID: conversationID,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session; absence is kv.ErrAbsent.
func (s *Sessions) Get(ctx context.Context, conversationID string) (*Session, error) {
	fields, err := s.kv.HGetAll(ctx, sessionKey(conversationID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("session %s: %w", conversationID, kv.ErrAbsent)
	}
	sess := &Session{
		UserID:         fields["userId"],
		ConversationID: conversationID,
	}
	sess.MessageCount, _ = strconv.ParseInt(fields["messageCount"], 10, 64)
	sess.TokenCount, _ = strconv.ParseInt(fields["tokenCount"], 10, 64)
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, fields["startedAt"])
	sess.LastActivityAt, _ = time.Parse(time.RFC3339Nano, fields["lastActivityAt"])
	return sess, nil
}

// RecordActivity adds one message and its tokens, refreshing
// lastActivityAt and the TTL.
func (s *Sessions) RecordActivity(ctx context.Context, conversationID string, tokens int64) (*Session, error) {
	sess, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	sess.MessageCount++
	sess.TokenCount += tokens
	sess.LastActivityAt = s.clock.Now().UTC()
	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Touch refreshes lastActivityAt and the TTL without counting usage.
func (s *Sessions) Touch(ctx context.Context, conversationID string) error {
	key := sessionKey(conversationID)
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("session %s: %w", conversationID, kv.ErrAbsent)
	}
	now := s.clock.Now().UTC()
	if err := s.kv.HSet(ctx, key, map[string]string{
		"lastActivityAt": now.Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.ttl)
}

// Delete ends the session.
func (s *Sessions) Delete(ctx context.Context, conversationID string) error {
	_, err := s.kv.Delete(ctx, sessionKey(conversationID))
	return err
}

func (s *Sessions) write(ctx context.Context, sess *Session) error {
	key := sessionKey(sess.ConversationID)
	if err := s.kv.HSet(ctx, key, map[string]string{
		"userId":         sess.UserID,
		"messageCount":   strconv.FormatInt(sess.MessageCount, 10),
		"tokenCount":     strconv.FormatInt(sess.TokenCount, 10),
		"startedAt":      sess.StartedAt.Format(time.RFC3339Nano),
		"lastActivityAt": sess.LastActivityAt.Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.ttl)
}
