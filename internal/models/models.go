// Package models defines the relay's core data structures: persistent
// identity (User, Machine), ephemeral grants (Session, Invite), and the
// request/response shapes the HTTP control plane binds JSON onto.
//
// Persistence tags (json) follow the single-JSON-document layout in
// spec.md §6; there is no database, so there are no db tags.
package models

import "time"

// Machine belongs to exactly one User (spec.md §3). Its Agent Key is
// generated once at creation and never rotated; losing it revokes all
// connectivity for the machine.
type Machine struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	AgentKey         string  `json:"agentKey"`
	MacAddress       *string `json:"macAddress"`
	BroadcastAddress *string `json:"broadcastAddress"`
}

// User is a stable identity with a password verifier and an ordered list of
// Machines. Users are created only at bootstrap seeding and never destroyed
// at runtime.
type User struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"displayName"`
	PasswordHash string     `json:"passwordHash"`
	Machines     []*Machine `json:"machines"`

	// LegacyAgentKey supports the one-time migration described in spec.md
	// §4.1: a legacy record with a top-level agent key and no machines list
	// is rewritten into a single-machine form on load.
	LegacyAgentKey string `json:"agentKey,omitempty"`
}

// Session is a bearer token minted on login (spec.md §3). LastActive is
// refreshed on every successful validation and drives the 24-hour
// inactivity sweep.
type Session struct {
	Token      string    `json:"token"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// Invite grants a viewer role scoped to one (User, Machine) pair without a
// login session (spec.md §3). It is destroyed lazily, on first use past its
// absolute expiry.
type Invite struct {
	Token       string    `json:"token"`
	UserID      string    `json:"userId"`
	MachineID   string    `json:"machineId"`
	DisplayName string    `json:"displayName"`
	MachineName string    `json:"machineName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// --- HTTP request/response bodies ---

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type SessionResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type AddMachineRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenameMachineRequest struct {
	Name string `json:"name" binding:"required"`
}

type SetMacRequest struct {
	MacAddress       *string `json:"macAddress"`
	BroadcastAddress *string `json:"broadcastAddress"`
}

type WakeResponse struct {
	OK            bool   `json:"ok"`
	AlreadyOnline bool   `json:"alreadyOnline,omitempty"`
	Message       string `json:"message,omitempty"`
}

type InviteResponse struct {
	Token string `json:"token"`
}

type InviteInfoResponse struct {
	DisplayName string `json:"displayName"`
	MachineName string `json:"machineName"`
	MachineID   string `json:"machineId"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
	Agents   int    `json:"agents"`
	Memory   uint64 `json:"memory"`
}
