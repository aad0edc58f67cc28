// Package invitestore implements the Invite Store (spec.md §4.3): in-memory
// single-use-capable share tokens with absolute expiry, expired lazily on
// access rather than swept in the background.
//
// Grounded on the teacher's token-generation idiom in
// internal/auth/tokenhash.go (crypto/rand + uuid for unguessable bearer
// tokens), generalized to the relay's (User, Machine) grant shape.
package invitestore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/relay/internal/apierrors"
	"github.com/streamspace-dev/relay/internal/models"
)

// TTL is the absolute 7-day expiry (spec.md §3).
const TTL = 7 * 24 * time.Hour

// Store is the process-singleton Invite Store.
type Store struct {
	mu      sync.Mutex
	invites map[string]*models.Invite
}

// New creates an empty Store.
func New() *Store {
	return &Store{invites: make(map[string]*models.Invite)}
}

// Create mints an invite for (userID, machineID), snapshotting the display
// and machine names at creation time.
func (s *Store) Create(userID, machineID, displayName, machineName string) *models.Invite {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := &models.Invite{
		Token:       uuid.NewString(),
		UserID:      userID,
		MachineID:   machineID,
		DisplayName: displayName,
		MachineName: machineName,
		ExpiresAt:   time.Now().Add(TTL),
	}
	s.invites[inv.Token] = inv
	return inv
}

// Inspect returns the invite's snapshot if the token is present and not yet
// expired, deleting it if the expiry has passed.
func (s *Store) Inspect(token string) (*models.Invite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(token)
}

func (s *Store) lookupLocked(token string) (*models.Invite, bool) {
	inv, ok := s.invites[token]
	if !ok {
		return nil, false
	}
	if time.Now().After(inv.ExpiresAt) {
		delete(s.invites, token)
		return nil, false
	}
	return inv, true
}

// Revoke removes an invite, provided userID owns it.
func (s *Store) Revoke(userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[token]
	if !ok {
		return apierrors.NotFoundErr("invite not found")
	}
	if inv.UserID != userID {
		return apierrors.ForbiddenErr("invite belongs to another user")
	}
	delete(s.invites, token)
	return nil
}
