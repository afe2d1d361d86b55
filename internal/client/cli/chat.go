package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	"github.com/banuni/haxor-mk2/internal/chat/protocol"
	"github.com/banuni/haxor-mk2/internal/client"
)

// chatCmd represents the chat command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the live feed and chat",
	Long: `Join the live feed and chat.

Lines you type are sent as chat messages. Slash commands:
  /rename <name>        rename yourself
  /rename <id> <name>   rename another participant (master only)
  /clear                clear the shared feed
  /quit                 disconnect and exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&username, "username", "", "Display name to join with")
	chatCmd.Flags().StringVar(&userID, "user-id", "", "Stable identity (defaults to the username)")
	chatCmd.Flags().StringVar(&role, "role", string(domain.RolePlayer), "Role to join as (player or master)")
	_ = chatCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	joinID := strings.TrimSpace(userID)
	if joinID == "" {
		joinID = strings.TrimSpace(username)
	}

	stopped := make(chan error, 1)
	var driver *client.Driver
	driver = client.New(wsURL(serverURL),
		client.WithOnFrame(func(frame protocol.Frame) {
			if rendered := RenderFrame(frame); rendered != "" {
				fmt.Println(rendered)
			}
		}),
		client.WithOnStateChange(func(state client.State, terminal error) {
			switch state {
			case client.StateConnected:
				fmt.Println(infoStyle.Render("* connected"))
				go func() {
					_ = driver.Send(protocol.EventJoinChat, protocol.JoinChat{
						UserID:   joinID,
						Username: username,
						Role:     domain.Role(role),
					})
				}()
			case client.StateConnecting:
				fmt.Println(infoStyle.Render("* connecting..."))
			case client.StateStopped:
				if terminal != nil {
					stopped <- terminal
				}
			}
		}),
	)
	defer driver.Close()
	driver.Connect()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case err := <-stopped:
			return fmt.Errorf("connection lost: %w", err)
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := handleInput(driver, joinID, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Println(errorStyle.Render("! " + err.Error()))
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleInput(driver *client.Driver, selfID, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		return driver.Send(protocol.EventSendMessage, protocol.SendMessage{Text: line})
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return errQuit
	case "/clear":
		return driver.Send(protocol.EventClearMessages, protocol.ClearMessages{})
	case "/rename":
		switch len(fields) {
		case 2:
			return driver.Send(protocol.EventUpdateUsername, protocol.UpdateUsername{
				UserID:   selfID,
				Username: fields[1],
			})
		case 3:
			return driver.Send(protocol.EventUpdateUsername, protocol.UpdateUsername{
				UserID:   fields[1],
				Username: fields[2],
			})
		default:
			return errors.New("usage: /rename [id] <name>")
		}
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
