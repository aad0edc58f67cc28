package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/relay/internal/config"
	"github.com/streamspace-dev/relay/internal/invitestore"
	"github.com/streamspace-dev/relay/internal/models"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/relay"
	"github.com/streamspace-dev/relay/internal/sessionstore"
	"github.com/streamspace-dev/relay/internal/userstore"
)

func newTestServer(t *testing.T) (*Server, *userstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	users := userstore.New(filepath.Join(dir, "users.json"))
	require.NoError(t, users.Init())

	cfg := &config.Config{
		MaxLoginAttempts: 5,
		LockoutMinutes:   15,
		WoLBroadcastAddr: "255.255.255.255",
		AgentFilesDir:    dir,
	}
	sessions := sessionstore.New()
	invites := invitestore.New()
	reg := registry.New()
	dispatcher := relay.New(reg, users, sessions, invites)

	s := New(cfg, users, sessions, invites, reg, dispatcher, time.Now().Add(-time.Hour))
	return s, users
}

func doRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginSucceedsWithSeededDemoPassword(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	w := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "kingpin"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "kingpin", resp.UserID)
	assert.NotEmpty(t, resp.Token)
}

func TestLoginLocksOutOnFifthWrongPassword(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	for i := 0; i < 4; i++ {
		w := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "wrong"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "the fifth wrong password within the window must be rejected as locked out, not processed as a fourth 401")
}

func TestMachinesRouteForbidsNonOwner(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	login := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "tez"})
	require.Equal(t, http.StatusOK, login.Code)
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &resp))
	require.Equal(t, "tez", resp.UserID)

	w := doRequest(r, http.MethodGet, "/api/machines/kingpin", resp.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWakeShortCircuitsWhenAgentAlreadyOnline(t *testing.T) {
	s, users := newTestServer(t)
	r := s.Router()

	login := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "kingpin"})
	var loginResp models.LoginResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginResp))

	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	require.Len(t, machines, 1)
	machine := machines[0]

	conn := &registry.AgentConnection{AgentKey: machine.AgentKey, MachineID: machine.ID, UserID: "kingpin", Sock: &fakeAgentSender{id: "a1"}}
	s.dispatcher.AgentActive(conn)

	w := doRequest(r, http.MethodPost, "/api/machines/kingpin/"+machine.ID+"/wake", loginResp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var wake models.WakeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wake))
	assert.True(t, wake.OK)
	assert.True(t, wake.AlreadyOnline)
}

func TestWakeRejectsMachineWithoutMacAddress(t *testing.T) {
	s, users := newTestServer(t)
	r := s.Router()

	login := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "kingpin"})
	var loginResp models.LoginResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginResp))

	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	machine := machines[0]

	w := doRequest(r, http.MethodPost, "/api/machines/kingpin/"+machine.ID+"/wake", loginResp.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInviteInfoReturns401ForUnknownToken(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()

	w := doRequest(r, http.MethodGet, "/api/invite-info/does-not-exist", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInviteLifecycleCreateInspectRevoke(t *testing.T) {
	s, users := newTestServer(t)
	r := s.Router()

	login := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "kingpin"})
	var loginResp models.LoginResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &loginResp))

	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	machine := machines[0]

	created := doRequest(r, http.MethodPost, "/api/invites/kingpin/"+machine.ID, loginResp.Token, nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var inv models.InviteResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inv))
	require.NotEmpty(t, inv.Token)

	info := doRequest(r, http.MethodGet, "/api/invite-info/"+inv.Token, "", nil)
	require.Equal(t, http.StatusOK, info.Code)

	revoked := doRequest(r, http.MethodDelete, "/api/invites/kingpin/"+inv.Token, loginResp.Token, nil)
	require.Equal(t, http.StatusNoContent, revoked.Code)

	infoAfter := doRequest(r, http.MethodGet, "/api/invite-info/"+inv.Token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, infoAfter.Code)
}

func TestHealthReportsSessionsAndAgents(t *testing.T) {
	s, users := newTestServer(t)
	r := s.Router()

	login := doRequest(r, http.MethodPost, "/api/login", "", models.LoginRequest{Password: "kingpin"})
	require.Equal(t, http.StatusOK, login.Code)

	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	machine := machines[0]
	conn := &registry.AgentConnection{AgentKey: machine.AgentKey, MachineID: machine.ID, UserID: "kingpin", Sock: &fakeAgentSender{id: "a1"}}
	s.dispatcher.AgentActive(conn)

	w := doRequest(r, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)
	assert.Equal(t, 1, health.Agents)
	assert.NotEmpty(t, health.Uptime)
}

func TestSetupScriptServesOnlyKnownAgentKeys(t *testing.T) {
	s, users := newTestServer(t)
	r := s.Router()

	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	machine := machines[0]

	w := doRequest(r, http.MethodGet, "/api/setup/"+machine.AgentKey, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), machine.AgentKey)

	missing := doRequest(r, http.MethodGet, "/api/setup/not-a-real-key", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

type fakeAgentSender struct {
	id string
}

func (f *fakeAgentSender) ID() string                      { return f.id }
func (f *fakeAgentSender) Send(registry.Event) bool         { return true }
func (f *fakeAgentSender) SendVolatile(registry.Event) bool { return true }
func (f *fakeAgentSender) Close()                           {}
