package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndValidate(t *testing.T) {
	s := New()
	sess := s.Create("kingpin")
	require.NotEmpty(t, sess.Token)

	got, ok := s.Validate(sess.Token)
	require.True(t, ok)
	assert.Equal(t, "kingpin", got.UserID)
}

func TestValidateUnknownToken(t *testing.T) {
	s := New()
	_, ok := s.Validate("does-not-exist")
	assert.False(t, ok)
}

func TestValidateRefreshesLastActive(t *testing.T) {
	s := New()
	sess := s.Create("kingpin")
	sess.LastActive = time.Now().Add(-1 * time.Hour)

	_, ok := s.Validate(sess.Token)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), sess.LastActive, 2*time.Second)
}

func TestValidateExpiresAfterTTL(t *testing.T) {
	s := New()
	sess := s.Create("kingpin")
	sess.LastActive = time.Now().Add(-TTL - time.Minute)

	_, ok := s.Validate(sess.Token)
	assert.False(t, ok)

	// Lazily deleted: a second lookup still fails.
	_, ok = s.Validate(sess.Token)
	assert.False(t, ok)
}

func TestDeleteLogout(t *testing.T) {
	s := New()
	sess := s.Create("kingpin")
	s.Delete(sess.Token)

	_, ok := s.Validate(sess.Token)
	assert.False(t, ok)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	s := New()
	fresh := s.Create("kingpin")
	stale := s.Create("tez")
	stale.LastActive = time.Now().Add(-TTL - time.Minute)

	s.sweep()

	assert.Equal(t, 1, s.Count())
	_, ok := s.Validate(fresh.Token)
	assert.True(t, ok)
}
