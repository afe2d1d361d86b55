package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient := &http.Client{Timeout: 5 * time.Second}
		resp, err := httpClient.Get(serverURL + "/api/health")
		if err != nil {
			return fmt.Errorf("reach server: %w", err)
		}
		defer resp.Body.Close()

		var health struct {
			Status        string `json:"status"`
			ServerTime    string `json:"server_time"`
			UptimeSeconds int64  `json:"uptime_seconds"`
			ActiveUsers   int    `json:"active_users"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("decode health response: %w", err)
		}

		fmt.Println(infoStyle.Render(fmt.Sprintf("status: %s", health.Status)))
		fmt.Printf("server time: %s\n", health.ServerTime)
		fmt.Printf("uptime: %ds\n", health.UptimeSeconds)
		fmt.Printf("active users: %d\n", health.ActiveUsers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
