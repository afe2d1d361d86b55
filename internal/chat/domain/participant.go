// Package domain defines the chat entities shared by the presence registry,
// the session gateway, and the message store.
package domain

// Role identifies which side of the table a participant sits on.
type Role string

const (
	// RoleMaster is the single privileged identity. The master may rename
	// any participant; players may only rename themselves.
	RoleMaster Role = "master"
	// RolePlayer is a regular participant.
	RolePlayer Role = "player"
	// RoleSystem marks messages emitted by the task engine rather than a
	// connected participant.
	RoleSystem Role = "system"
)

// Participant is a connected, named entity in the presence registry.
// It is connection-scoped process state and is never persisted.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
