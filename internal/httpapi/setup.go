package httpapi

import (
	"net/http"
	"strings"
	"text/template"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/relay/internal/apierrors"
)

// handleAgentFiles serves the agent installer payload (binaries, the
// companion scripts' static assets) directly off disk. The exact contents
// of cfg.AgentFilesDir are mechanical and not part of the relay's own
// behavior.
func (s *Server) handleAgentFiles(c *gin.Context) {
	fs := http.StripPrefix("/agent-files/", http.FileServer(http.Dir(s.cfg.AgentFilesDir)))
	fs.ServeHTTP(c.Writer, c.Request)
}

// setupTemplateData is what the installer scripts interpolate: the relay's
// own address and the one agent key that binds the installed agent to its
// machine record.
type setupTemplateData struct {
	Host     string
	AgentKey string
}

var unixSetupTemplate = template.Must(template.New("setup.sh").Parse(`#!/bin/sh
set -e

RELAY_HOST="{{.Host}}"
AGENT_KEY="{{.AgentKey}}"

echo "Installing relay agent for ${RELAY_HOST}"
mkdir -p /opt/relay-agent
curl -fsSL "https://${RELAY_HOST}/agent-files/relay-agent" -o /opt/relay-agent/relay-agent
chmod +x /opt/relay-agent/relay-agent

cat <<EOT > /opt/relay-agent/agent.conf
relay_host=${RELAY_HOST}
agent_key=${AGENT_KEY}
EOT

echo "Agent installed. Configure it to run at startup with your service manager of choice."
`))

var windowsSetupTemplate = template.Must(template.New("setup.ps1").Parse(`$RelayHost = "{{.Host}}"
$AgentKey = "{{.AgentKey}}"

Write-Host "Installing relay agent for $RelayHost"
New-Item -ItemType Directory -Force -Path "C:\Program Files\RelayAgent" | Out-Null
Invoke-WebRequest -Uri "https://$RelayHost/agent-files/relay-agent.exe" -OutFile "C:\Program Files\RelayAgent\relay-agent.exe"

@"
relay_host=$RelayHost
agent_key=$AgentKey
"@ | Set-Content -Path "C:\Program Files\RelayAgent\agent.conf"

Write-Host "Agent installed. Register it as a Windows service to run at startup."
`))

func (s *Server) handleSetupScript(c *gin.Context) {
	s.renderSetupScript(c, unixSetupTemplate, "text/x-sh", "setup.sh")
}

func (s *Server) handleSetupWinScript(c *gin.Context) {
	s.renderSetupScript(c, windowsSetupTemplate, "text/plain", "setup.ps1")
}

func (s *Server) renderSetupScript(c *gin.Context, tmpl *template.Template, contentType, filename string) {
	agentKey := c.Param("agentKey")
	if _, _, ok := s.users.GetByAgentKey(agentKey); !ok {
		respondError(c, apierrors.NotFoundErr("unknown agent key"))
		return
	}

	var buf strings.Builder
	data := setupTemplateData{Host: c.Request.Host, AgentKey: agentKey}
	if err := tmpl.Execute(&buf, data); err != nil {
		respondError(c, apierrors.New(apierrors.Fatal, "failed to render setup script"))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, []byte(buf.String()))
}
