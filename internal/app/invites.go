package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/squadmap/squadmap/internal/domain"
)

const tokenBytes = 24

// InviteStore owns every live invite token. Entries are purged lazily:
// an expired or exhausted token is deleted the moment a redemption
// attempt finds it so, never by a background sweep. Unredeemed expired
// tokens therefore linger until someone tries them.
type InviteStore struct {
	mu            sync.Mutex
	invites       map[string]*domain.Invite
	rooms         *Registry
	defaultExpiry time.Duration
	now           func() time.Time
}

func NewInviteStore(rooms *Registry, defaultExpiry time.Duration) *InviteStore {
	if defaultExpiry <= 0 {
		defaultExpiry = 24 * time.Hour
	}
	return &InviteStore{
		invites:       make(map[string]*domain.Invite),
		rooms:         rooms,
		defaultExpiry: defaultExpiry,
		now:           time.Now,
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create issues a token for an existing room. Unlike messages and
// locations, invite creation never creates the room implicitly; the
// password must match and is snapshotted into the invite as-is.
func (s *InviteStore) Create(room domain.RoomName, password string, expiry time.Duration, maxUses int) (*domain.Invite, error) {
	if err := s.rooms.Authorize(room, password); err != nil {
		return nil, err
	}
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}
	if maxUses < 1 {
		maxUses = 1
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	inv := &domain.Invite{
		Token:     token,
		Room:      room,
		Password:  password,
		ExpiresAt: s.now().Add(expiry),
		MaxUses:   maxUses,
	}

	s.mu.Lock()
	s.invites[token] = inv
	s.mu.Unlock()

	log.Info().Str("module", "app.invites").Str("room", string(room)).Int("max_uses", maxUses).Time("expires_at", inv.ExpiresAt).Msg("created invite")
	cp := *inv
	return &cp, nil
}

// Redeem consumes one use and returns the room/password snapshot.
// Expiry wins over remaining uses; both conditions purge the entry.
// Exactly MaxUses redemptions can ever succeed: the whole check runs
// under one lock, so no two callers observe the same counter value.
func (s *InviteStore) Redeem(token string) (domain.RoomName, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[token]
	if !ok {
		return "", "", ErrInviteNotFound
	}
	if inv.Expired(s.now()) {
		delete(s.invites, token)
		log.Info().Str("module", "app.invites").Str("room", string(inv.Room)).Msg("purged expired invite")
		return "", "", ErrInviteExpired
	}
	inv.Uses++
	if inv.Uses >= inv.MaxUses {
		delete(s.invites, token)
		log.Info().Str("module", "app.invites").Str("room", string(inv.Room)).Msg("invite exhausted")
	}
	return inv.Room, inv.Password, nil
}

// Len reports live entries, including expired-but-unredeemed ones.
func (s *InviteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invites)
}
