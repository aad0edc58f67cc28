// Package userstore implements the User Store (spec.md §4.1): durable
// identity and machine records backed by a single JSON document, loaded at
// startup and rewritten atomically on every mutation.
//
// Grounded on the teacher's agent API-key hashing (internal/auth/agent_apikey.go)
// for the bcrypt verifier, and on its write-through persistence idiom; unlike
// the teacher's Postgres-backed user table, there is no database here — the
// JSON document on disk is the only persistent resource (spec.md §5).
package userstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamspace-dev/relay/internal/apierrors"
	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/models"
)

// bcryptCost targets spec.md §3's ~100-250ms verifier check.
const bcryptCost = 12

// Store is the process-singleton User Store. All mutations are serialized
// by mu; reads may observe any consistent snapshot taken under RLock.
type Store struct {
	mu        sync.RWMutex
	path      string
	users     []*models.User
	sanitizer *bluemonday.Policy
}

// New creates a Store bound to path, without loading it. Call Init to load
// or seed.
func New(path string) *Store {
	return &Store{
		path:      path,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Init loads the JSON document at path, migrating any legacy single-machine
// record and seeding two demo users if the file is absent (spec.md §6).
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logger.UserStore().Info().Str("path", s.path).Msg("no user store found, seeding demo users")
		s.users = seedDemoUsers()
		return s.writeLocked()
	}
	if err != nil {
		return fmt.Errorf("reading user store: %w", err)
	}

	var users []*models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("parsing user store: %w", err)
	}

	migrated := false
	for _, u := range users {
		if u.LegacyAgentKey != "" && len(u.Machines) == 0 {
			u.Machines = []*models.Machine{{
				ID:       freshMachineID(),
				Name:     u.DisplayName,
				AgentKey: u.LegacyAgentKey,
			}}
			u.LegacyAgentKey = ""
			migrated = true
		}
	}

	s.users = users
	if migrated {
		logger.UserStore().Info().Msg("migrated legacy single-machine user records")
		return s.writeLocked()
	}
	return nil
}

func seedDemoUsers() []*models.User {
	mk := func(id, display string) *models.User {
		hash, _ := bcrypt.GenerateFromPassword([]byte(id), bcryptCost)
		return &models.User{
			ID:           id,
			DisplayName:  display,
			PasswordHash: string(hash),
			Machines: []*models.Machine{{
				ID:       freshMachineID(),
				Name:     display + "'s machine",
				AgentKey: freshAgentKey(),
			}},
		}
	}
	return []*models.User{
		mk("kingpin", "Kingpin"),
		mk("tez", "Tez"),
	}
}

// writeLocked rewrites the entire document atomically (write-temp, rename).
// Caller must hold mu.
func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding user store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating user store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp user store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp user store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp user store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp user store: %w", err)
	}
	return nil
}

// AuthenticateByPassword performs the sequential verifier scan spec.md §3
// mandates: the first user whose PasswordHash matches pw is returned.
func (s *Store) AuthenticateByPassword(pw string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pw)) == nil {
			return u, true
		}
	}
	return nil, false
}

// GetByAgentKey resolves an agent key to its owning (User, Machine) pair.
func (s *Store) GetByAgentKey(key string) (*models.User, *models.Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		for _, m := range u.Machines {
			if m.AgentKey == key {
				return u, m, true
			}
		}
	}
	return nil, nil, false
}

// AllUsers returns every known user, used by the health endpoint to count
// connected agents.
func (s *Store) AllUsers() []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, len(s.users))
	copy(out, s.users)
	return out
}

// GetUser returns a user by id.
func (s *Store) GetUser(userID string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUserLocked(userID)
}

func (s *Store) findUserLocked(userID string) (*models.User, bool) {
	for _, u := range s.users {
		if u.ID == userID {
			return u, true
		}
	}
	return nil, false
}

// GetMachines returns the machines belonging to userID.
func (s *Store) GetMachines(userID string) ([]*models.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.findUserLocked(userID)
	if !ok {
		return nil, apierrors.NotFoundErr("user not found")
	}
	return u.Machines, nil
}

// GetMachine returns a single machine owned by userID.
func (s *Store) GetMachine(userID, machineID string) (*models.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.findUserLocked(userID)
	if !ok {
		return nil, apierrors.NotFoundErr("user not found")
	}
	for _, m := range u.Machines {
		if m.ID == machineID {
			return m, nil
		}
	}
	return nil, apierrors.NotFoundErr("machine not found")
}

// AddMachine creates a fresh machine for userID with a freshly generated
// Agent Key. The id is "m" + current wall-clock milliseconds + a random
// tie-break salt, redrawn if it collides with an existing id (spec.md §4.1).
func (s *Store) AddMachine(userID, name string) (*models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findUserLocked(userID)
	if !ok {
		return nil, apierrors.NotFoundErr("user not found")
	}

	m := &models.Machine{
		ID:       s.freshMachineIDLocked(),
		Name:     s.sanitizer.Sanitize(name),
		AgentKey: freshAgentKey(),
	}
	u.Machines = append(u.Machines, m)
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// freshMachineIDLocked guarantees id uniqueness across all users; caller
// holds mu.
func (s *Store) freshMachineIDLocked() string {
	for {
		id := freshMachineID()
		collision := false
		for _, u := range s.users {
			for _, m := range u.Machines {
				if m.ID == id {
					collision = true
				}
			}
		}
		if !collision {
			return id
		}
	}
}

// RenameMachine changes a machine's display name.
func (s *Store) RenameMachine(userID, machineID, name string) (*models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.mustMachineLocked(userID, machineID)
	if err != nil {
		return nil, err
	}
	m.Name = s.sanitizer.Sanitize(name)
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMachine deletes a machine owned by userID.
func (s *Store) RemoveMachine(userID, machineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.findUserLocked(userID)
	if !ok {
		return apierrors.NotFoundErr("user not found")
	}
	idx := -1
	for i, m := range u.Machines {
		if m.ID == machineID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apierrors.NotFoundErr("machine not found")
	}
	u.Machines = append(u.Machines[:idx], u.Machines[idx+1:]...)
	return s.writeLocked()
}

// SetMacAddress sets or clears the MAC address and broadcast IPv4 used for
// Wake-on-LAN.
func (s *Store) SetMacAddress(userID, machineID string, mac, broadcast *string) (*models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.mustMachineLocked(userID, machineID)
	if err != nil {
		return nil, err
	}
	m.MacAddress = mac
	m.BroadcastAddress = broadcast
	if err := s.writeLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) mustMachineLocked(userID, machineID string) (*models.Machine, error) {
	u, ok := s.findUserLocked(userID)
	if !ok {
		return nil, apierrors.NotFoundErr("user not found")
	}
	for _, m := range u.Machines {
		if m.ID == machineID {
			return m, nil
		}
	}
	return nil, apierrors.NotFoundErr("machine not found")
}

func freshMachineID() string {
	return fmt.Sprintf("m%d%s", time.Now().UnixMilli(), randomSalt(3))
}

// freshAgentKey returns an unguessable 128-bit random token (spec.md §3).
func freshAgentKey() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func randomSalt(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
