package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/model"
)

const (
	// SessionTokenPrefix is the prefix for all buyer session tokens
	SessionTokenPrefix = "gst_"

	// DefaultSessionTTL is the default session lifetime
	DefaultSessionTTL = 24 * time.Hour

	sessionKeyPrefix = "session:"
)

// ErrInvalidSession is returned for unknown, malformed or expired tokens.
var ErrInvalidSession = errors.New("invalid or expired session")

// SessionService issues and validates buyer sessions. The trusted login
// front-end mints a session once it has authenticated the buyer; every
// buyer request then carries the token.
type SessionService struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSessionService creates a new session service.
func NewSessionService(c cache.Cache, ttl time.Duration) *SessionService {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{cache: c, ttl: ttl}
}

// Issue creates a session for an authenticated buyer.
func (s *SessionService) Issue(ctx context.Context, buyerID, name, email string) (*model.Session, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("buyer id required: %w", model.ErrInvalidInput)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	sess := &model.Session{
		Token:         SessionTokenPrefix + hex.EncodeToString(tokenBytes),
		BuyerID:       buyerID,
		CustomerName:  name,
		CustomerEmail: email,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	if err := s.store(ctx, sess); err != nil {
		return nil, err
	}

	log.Printf("[SessionService] Issued session for buyer=%s, expires=%v", buyerID, sess.ExpiresAt)
	return sess, nil
}

func (s *SessionService) store(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+sess.Token, data, time.Until(sess.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Validate returns the session behind token.
func (s *SessionService) Validate(ctx context.Context, token string) (*model.Session, error) {
	if !strings.HasPrefix(token, SessionTokenPrefix) {
		return nil, ErrInvalidSession
	}

	data, err := s.cache.Get(ctx, sessionKeyPrefix+token)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	sess.Token = token

	if time.Now().After(sess.ExpiresAt) {
		_ = s.cache.Delete(ctx, sessionKeyPrefix+token)
		return nil, ErrInvalidSession
	}
	return &sess, nil
}

// Revoke deletes a session.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, sessionKeyPrefix+token)
}

// Refresh extends a live session by the full TTL.
func (s *SessionService) Refresh(ctx context.Context, token string) (*model.Session, error) {
	sess, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.Now().UTC().Add(s.ttl)
	if err := s.store(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
