package domain

import "time"

// ChatMessage is a persisted chat feed entry. The author name and role are
// denormalized snapshots so the message survives the author's disconnection.
type ChatMessage struct {
	ID        string     `json:"id"`
	FromName  string     `json:"from_name"`
	FromRole  string     `json:"from_role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	ClearedAt *time.Time `json:"cleared_at,omitempty"`
}
