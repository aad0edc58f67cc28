package userstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := New(filepath.Join(dir, "users.json"))
	require.NoError(t, s.Init())
	return s
}

func TestInitSeedsDemoUsers(t *testing.T) {
	s := newTestStore(t)

	kingpin, ok := s.AuthenticateByPassword("kingpin")
	require.True(t, ok)
	assert.Equal(t, "Kingpin", kingpin.DisplayName)

	tez, ok := s.AuthenticateByPassword("tez")
	require.True(t, ok)
	assert.Equal(t, "Tez", tez.DisplayName)

	_, ok = s.AuthenticateByPassword("nope")
	assert.False(t, ok)
}

func TestAddMachineGeneratesFreshAgentKey(t *testing.T) {
	s := newTestStore(t)

	m1, err := s.AddMachine("kingpin", "office-pc")
	require.NoError(t, err)
	m2, err := s.AddMachine("kingpin", "laptop")
	require.NoError(t, err)

	assert.NotEqual(t, m1.AgentKey, m2.AgentKey)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.Len(t, m1.AgentKey, 32) // 16 bytes hex-encoded
}

func TestAddMachineSanitizesName(t *testing.T) {
	s := newTestStore(t)

	m, err := s.AddMachine("kingpin", "<script>alert(1)</script>office")
	require.NoError(t, err)
	assert.NotContains(t, m.Name, "<script>")
}

func TestGetByAgentKey(t *testing.T) {
	s := newTestStore(t)

	machines, err := s.GetMachines("kingpin")
	require.NoError(t, err)
	require.Len(t, machines, 1)

	u, m, ok := s.GetByAgentKey(machines[0].AgentKey)
	require.True(t, ok)
	assert.Equal(t, "kingpin", u.ID)
	assert.Equal(t, machines[0].ID, m.ID)

	_, _, ok = s.GetByAgentKey("does-not-exist")
	assert.False(t, ok)
}

func TestRenameAndRemoveMachine(t *testing.T) {
	s := newTestStore(t)

	m, err := s.AddMachine("kingpin", "old-name")
	require.NoError(t, err)

	renamed, err := s.RenameMachine("kingpin", m.ID, "new-name")
	require.NoError(t, err)
	assert.Equal(t, "new-name", renamed.Name)

	require.NoError(t, s.RemoveMachine("kingpin", m.ID))

	_, err = s.GetMachine("kingpin", m.ID)
	assert.Error(t, err)
}

func TestSetMacAddress(t *testing.T) {
	s := newTestStore(t)
	machines, err := s.GetMachines("kingpin")
	require.NoError(t, err)
	machineID := machines[0].ID

	mac := "11:22:33:44:55:66"
	broadcast := "192.168.1.255"
	m, err := s.SetMacAddress("kingpin", machineID, &mac, &broadcast)
	require.NoError(t, err)
	require.NotNil(t, m.MacAddress)
	assert.Equal(t, mac, *m.MacAddress)
	assert.Equal(t, broadcast, *m.BroadcastAddress)
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	s1 := New(path)
	require.NoError(t, s1.Init())
	_, err := s1.AddMachine("kingpin", "persisted-machine")
	require.NoError(t, err)

	s2 := New(path)
	require.NoError(t, s2.Init())
	machines, err := s2.GetMachines("kingpin")
	require.NoError(t, err)
	require.Len(t, machines, 2)
}
