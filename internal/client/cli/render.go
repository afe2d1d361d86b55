package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	"github.com/banuni/haxor-mk2/internal/chat/protocol"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

var (
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	masterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	playerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	taskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)
)

// RenderFrame formats one inbound frame as terminal feed lines. Frames with
// nothing worth showing render as an empty string.
func RenderFrame(frame protocol.Frame) string {
	switch frame.Event {
	case protocol.EventInitialData:
		var snapshot protocol.InitialData
		if err := json.Unmarshal(frame.Data, &snapshot); err != nil {
			return ""
		}
		return renderSnapshot(snapshot)
	case protocol.EventNewMessage:
		var message domain.ChatMessage
		if err := json.Unmarshal(frame.Data, &message); err != nil {
			return ""
		}
		return renderMessage(message)
	case protocol.EventUserJoined:
		var payload protocol.UserJoined
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return ""
		}
		return infoStyle.Render("* " + payload.Message)
	case protocol.EventUserLeft:
		var payload protocol.UserLeft
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return ""
		}
		return infoStyle.Render("* " + payload.Message)
	case protocol.EventUserUpdated:
		var payload protocol.UserUpdated
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return ""
		}
		return infoStyle.Render(fmt.Sprintf("* %s is now known as %s", payload.OldUsername, payload.User.Username))
	case protocol.EventMessagesCleared:
		return infoStyle.Render("* feed cleared")
	case protocol.EventError:
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return ""
		}
		return errorStyle.Render(fmt.Sprintf("! %s: %s", payload.Code, payload.Message))
	case protocol.EventTaskCreated, protocol.EventTaskUpdated,
		protocol.EventTaskCompleted, protocol.EventTaskCancelled:
		var task tasksdomain.Task
		if err := json.Unmarshal(frame.Data, &task); err != nil {
			return ""
		}
		return renderTask(task)
	default:
		return ""
	}
}

func renderSnapshot(snapshot protocol.InitialData) string {
	var lines []string
	for _, message := range snapshot.Messages {
		lines = append(lines, renderMessage(message))
	}
	if len(snapshot.ActiveUsers) > 0 {
		names := make([]string, 0, len(snapshot.ActiveUsers))
		for _, user := range snapshot.ActiveUsers {
			names = append(names, user.Username)
		}
		lines = append(lines, infoStyle.Render("* online: "+strings.Join(names, ", ")))
	}
	for _, task := range snapshot.Tasks {
		lines = append(lines, renderTask(task))
	}
	return strings.Join(lines, "\n")
}

func renderMessage(message domain.ChatMessage) string {
	name := message.FromName
	switch domain.Role(message.FromRole) {
	case domain.RoleSystem:
		name = systemStyle.Render(name)
	case domain.RoleMaster:
		name = masterStyle.Render(name)
	default:
		name = playerStyle.Render(name)
	}
	return fmt.Sprintf("%s %s: %s",
		message.CreatedAt.Local().Format("15:04:05"), name, message.Content)
}

func renderTask(task tasksdomain.Task) string {
	line := fmt.Sprintf("[task] %s on %s: %s", task.AlgorithmName, task.TargetName, task.Status)
	if task.Status == tasksdomain.StatusInProgress && task.EstimatedSeconds > 0 {
		line += fmt.Sprintf(" (eta %ds, %d%%)", task.EstimatedSeconds, task.Probability)
	}
	return taskStyle.Render(line)
}
