// Package sessionstore implements the Session Store (spec.md §4.2): an
// in-memory token→session map with a fixed 24-hour inactivity TTL and a
// periodic sweep.
//
// Grounded on the teacher's internal/auth/session_store.go (SessionData
// shape, generated-token idiom) but deliberately in-memory only — spec.md §2
// requires all state but user records to vanish on restart, where the
// teacher's store is Redis-backed. The periodic sweep uses robfig/cron/v3,
// the same scheduling library the teacher already depends on, in place of a
// raw time.Ticker.
package sessionstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/models"
)

// TTL is the fixed 24-hour inactivity window (spec.md §3).
const TTL = 24 * time.Hour

// sweepSchedule runs the expiry sweep every 10 minutes (spec.md §4.2).
const sweepSchedule = "@every 10m"

// Store is the process-singleton Session Store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	cron     *cron.Cron
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
	}
}

// StartSweeper installs the periodic inactivity sweep. Call Stop to shut it
// down during graceful drain.
func (s *Store) StartSweeper() {
	s.cron = cron.New()
	_, _ = s.cron.AddFunc(sweepSchedule, s.sweep)
	s.cron.Start()
}

// Stop halts the sweeper.
func (s *Store) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Create mints a fresh session for userID.
func (s *Store) Create(userID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &models.Session{
		Token:      uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[sess.Token] = sess
	return sess
}

// Validate checks token, refreshing LastActive on success and lazy-deleting
// on expiry.
func (s *Store) Validate(token string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if time.Since(sess.LastActive) > TTL {
		delete(s.sessions, token)
		return nil, false
	}
	sess.LastActive = time.Now()
	return sess, true
}

// Delete removes a session on explicit logout.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// sweep removes all entries whose LastActive is older than TTL.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for token, sess := range s.sessions {
		if now.Sub(sess.LastActive) > TTL {
			delete(s.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		logger.HTTP().Info().Int("removed", removed).Msg("session sweep removed expired sessions")
	}
}

// Count returns the number of live sessions, used by GET /api/health.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
