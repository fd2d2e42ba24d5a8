package realtime

import (
	"context"
	"fmt"
	"sync"

	"backend-runbarbie/internal/logger"
)

// BridgeFactory builds an unconnected bridge.
type BridgeFactory func() *Bridge

// Factory returns a BridgeFactory for the relay at wsURL.
func Factory(wsURL string, log *logger.Logger) BridgeFactory {
	return func() *Bridge { return NewBridge(wsURL, log) }
}

// SessionController owns the bridge of the signed-in user. There is at most
// one bridge at a time, and it lives until the user changes or logs out, so
// subscriptions made on it outlast reconnects.
type SessionController struct {
	newBridge BridgeFactory
	log       *logger.Logger

	mu     sync.Mutex
	userID string
	bridge *Bridge
}

func NewSessionController(newBridge BridgeFactory, log *logger.Logger) *SessionController {
	return &SessionController{newBridge: newBridge, log: logger.OrNop(log)}
}

// Prepare returns the bridge for userID without dialing, replacing a bridge
// bound to another user. Subscribe on it before Login to miss nothing.
func (s *SessionController) Prepare(userID string) *Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepareLocked(userID)
}

// Login connects the bridge for userID. A connected bridge of the same user
// is returned as is; one that lost its connection is redialed in place.
func (s *SessionController) Login(ctx context.Context, userID, token string) (*Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.prepareLocked(userID)
	if b.Connected() {
		return b, nil
	}
	if err := b.Connect(ctx, token); err != nil {
		return nil, fmt.Errorf("connect realtime: %w", err)
	}
	s.log.Info("realtime session started", "user_id", userID)
	return b, nil
}

func (s *SessionController) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Bridge returns the current bridge, or nil when signed out.
func (s *SessionController) Bridge() *Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

func (s *SessionController) prepareLocked(userID string) *Bridge {
	if s.bridge != nil && s.userID == userID {
		return s.bridge
	}
	s.closeLocked()
	s.userID = userID
	s.bridge = s.newBridge()
	return s.bridge
}

func (s *SessionController) closeLocked() {
	if s.bridge == nil {
		return
	}
	if err := s.bridge.Close(); err != nil {
		s.log.Warn("closing realtime bridge", "user_id", s.userID, "error", err)
	}
	s.log.Info("realtime session ended", "user_id", s.userID)
	s.bridge = nil
	s.userID = ""
}
