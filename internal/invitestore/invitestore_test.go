package invitestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndInspect(t *testing.T) {
	s := New()
	inv := s.Create("kingpin", "m1", "Kingpin", "office-pc")

	got, ok := s.Inspect(inv.Token)
	require.True(t, ok)
	assert.Equal(t, "m1", got.MachineID)
	assert.Equal(t, "Kingpin", got.DisplayName)
}

func TestInspectUnknownToken(t *testing.T) {
	s := New()
	_, ok := s.Inspect("does-not-exist")
	assert.False(t, ok)
}

func TestInspectExpiredInviteIsRemoved(t *testing.T) {
	s := New()
	inv := s.Create("kingpin", "m1", "Kingpin", "office-pc")
	s.invites[inv.Token].ExpiresAt = time.Now().Add(-time.Second)

	_, ok := s.Inspect(inv.Token)
	assert.False(t, ok)

	// Removed: Revoke now reports not found.
	err := s.Revoke("kingpin", inv.Token)
	assert.Error(t, err)
}

func TestRevokeRequiresOwnership(t *testing.T) {
	s := New()
	inv := s.Create("kingpin", "m1", "Kingpin", "office-pc")

	err := s.Revoke("tez", inv.Token)
	assert.Error(t, err)

	err = s.Revoke("kingpin", inv.Token)
	assert.NoError(t, err)

	_, ok := s.Inspect(inv.Token)
	assert.False(t, ok)
}
