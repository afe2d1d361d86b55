// Package protocol defines the JSON wire envelope and the closed catalogs of
// inbound commands and outbound events exchanged over the persistent
// connection. Frames are decoded once at the boundary into typed values so no
// component downstream handles loose payloads.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

// Frame is the JSON envelope used in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	EventJoinChat       = "join_chat"
	EventSendMessage    = "send_message"
	EventUpdateUsername = "update_username"
	EventClearMessages  = "clear_messages"
)

// Outbound event names.
const (
	EventInitialData     = "initial_data"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventUserUpdated     = "user_updated"
	EventNewMessage      = "new_message"
	EventMessagesCleared = "messages_cleared"
	EventActiveUsers     = "active_users"
	EventError           = "error"
	EventTaskCreated     = "task_created"
	EventTaskUpdated     = "task_updated"
	EventTaskCompleted   = "task_completed"
	EventTaskCancelled   = "task_cancelled"
)

// Command is the closed union of decoded inbound frames.
type Command interface {
	isCommand()
}

// JoinChat binds the connection to a caller-asserted participant identity.
type JoinChat struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// SendMessage appends a chat message as the bound participant.
type SendMessage struct {
	Text string `json:"text"`
}

// UpdateUsername renames the target participant. Only the target itself or
// the privileged master identity may request it.
type UpdateUsername struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ClearMessages soft-deletes the whole feed.
type ClearMessages struct{}

func (JoinChat) isCommand()       {}
func (SendMessage) isCommand()    {}
func (UpdateUsername) isCommand() {}
func (ClearMessages) isCommand()  {}

// ParseCommand decodes an inbound frame into a typed command. Unknown events
// and malformed payloads yield a DECODE_ERROR.
func ParseCommand(frame Frame) (Command, error) {
	decode := func(target any) error {
		data := frame.Data
		if len(data) == 0 {
			data = []byte("{}")
		}
		if err := json.Unmarshal(data, target); err != nil {
			return apperrors.Wrap(apperrors.CodeDecodeError,
				fmt.Sprintf("invalid %s payload", frame.Event), err)
		}
		return nil
	}

	switch frame.Event {
	case EventJoinChat:
		var cmd JoinChat
		if err := decode(&cmd); err != nil {
			return nil, err
		}
		cmd.UserID = strings.TrimSpace(cmd.UserID)
		cmd.Username = strings.TrimSpace(cmd.Username)
		if cmd.UserID == "" {
			return nil, apperrors.New(apperrors.CodeUserIDEmpty, "user_id is required")
		}
		if cmd.Username == "" {
			return nil, apperrors.New(apperrors.CodeUsernameEmpty, "username is required")
		}
		if cmd.Role != domain.RoleMaster {
			cmd.Role = domain.RolePlayer
		}
		return cmd, nil
	case EventSendMessage:
		var cmd SendMessage
		if err := decode(&cmd); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cmd.Text) == "" {
			return nil, apperrors.New(apperrors.CodeMessageEmpty, "message text is required")
		}
		return cmd, nil
	case EventUpdateUsername:
		var cmd UpdateUsername
		if err := decode(&cmd); err != nil {
			return nil, err
		}
		cmd.UserID = strings.TrimSpace(cmd.UserID)
		cmd.Username = strings.TrimSpace(cmd.Username)
		if cmd.UserID == "" {
			return nil, apperrors.New(apperrors.CodeUserIDEmpty, "user_id is required")
		}
		if cmd.Username == "" {
			return nil, apperrors.New(apperrors.CodeUsernameEmpty, "username is required")
		}
		return cmd, nil
	case EventClearMessages:
		return ClearMessages{}, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeDecodeError,
			fmt.Sprintf("unsupported event %q", frame.Event),
			map[string]string{"event": frame.Event})
	}
}

// Outbound payload shapes.

// InitialData is the baseline snapshot sent exactly once per connection,
// immediately on open.
type InitialData struct {
	Messages    []domain.ChatMessage `json:"messages"`
	ActiveUsers []domain.Participant `json:"active_users"`
	Tasks       []tasksdomain.Task   `json:"tasks"`
}

// UserJoined announces a new participant.
type UserJoined struct {
	User    domain.Participant `json:"user"`
	Message string             `json:"message"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// UserUpdated announces a rename.
type UserUpdated struct {
	User        domain.Participant `json:"user"`
	OldUsername string             `json:"old_username"`
}

// MessagesCleared announces a feed wipe. Messages is always empty; clients
// replace their local feed with it.
type MessagesCleared struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// ErrorPayload reports a per-frame failure to the offending connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrom converts any error into the outbound error payload.
func ErrorFrom(err error) ErrorPayload {
	return ErrorPayload{
		Code:    string(apperrors.GetCode(err)),
		Message: err.Error(),
	}
}
