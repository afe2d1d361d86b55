package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

var (
	tasksIncludeAborted  bool
	tasksIncludeArchived bool

	createGoal      string
	createTarget    string
	createAlgorithm string
	createType      string

	analysisDistance float64
	analysisDefense  string
	analysisSize     string
)

// tasksCmd represents the tasks command group.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and drive hacking tasks over the REST API",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := serverURL + "/api/tasks"
		sep := "?"
		if tasksIncludeAborted {
			url += sep + "includeAborted=true"
			sep = "&"
		}
		if tasksIncludeArchived {
			url += sep + "includeArchived=true"
		}

		var tasks []tasksdomain.Task
		if err := apiCall(http.MethodGet, url, nil, &tasks); err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println(infoStyle.Render("no tasks"))
			return nil
		}
		for _, task := range tasks {
			fmt.Printf("%s  %s\n", task.ID, renderTask(task))
		}
		return nil
	},
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task (starts analyzing)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var task tasksdomain.Task
		err := apiCall(http.MethodPost, serverURL+"/api/tasks", map[string]any{
			"goal":           createGoal,
			"target_name":    createTarget,
			"algorithm_name": createAlgorithm,
			"task_type":      createType,
		}, &task)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", task.ID, renderTask(task))
		return nil
	},
}

var tasksAnalysisCmd = &cobra.Command{
	Use:   "analysis <id>",
	Short: "Resolve a task's analysis with target parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var task tasksdomain.Task
		err := apiCall(http.MethodPost, fmt.Sprintf("%s/api/tasks/%s/analysis", serverURL, args[0]), map[string]any{
			"distance_meters": analysisDistance,
			"defense":         analysisDefense,
			"size":            analysisSize,
		}, &task)
		if err != nil {
			return err
		}
		fmt.Println(renderTask(task))
		return nil
	},
}

func newTransitionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task tasksdomain.Task
			url := fmt.Sprintf("%s/api/tasks/%s/%s", serverURL, args[0], action)
			if err := apiCall(http.MethodPost, url, map[string]any{}, &task); err != nil {
				return err
			}
			fmt.Println(renderTask(task))
			return nil
		},
	}
}

func init() {
	tasksListCmd.Flags().BoolVar(&tasksIncludeAborted, "include-aborted", false, "Include aborted tasks")
	tasksListCmd.Flags().BoolVar(&tasksIncludeArchived, "include-archived", false, "Include archived tasks")

	tasksCreateCmd.Flags().StringVar(&createGoal, "goal", "", "What the hack is trying to achieve")
	tasksCreateCmd.Flags().StringVar(&createTarget, "target", "", "Target name")
	tasksCreateCmd.Flags().StringVar(&createAlgorithm, "algorithm", "", "Algorithm (alpha, beta, gamma, delta)")
	tasksCreateCmd.Flags().StringVar(&createType, "type", "scan", "Task type (disable, scan, extract, destroy)")
	_ = tasksCreateCmd.MarkFlagRequired("target")
	_ = tasksCreateCmd.MarkFlagRequired("algorithm")

	tasksAnalysisCmd.Flags().Float64Var(&analysisDistance, "distance", 1000, "Distance to the target in meters")
	tasksAnalysisCmd.Flags().StringVar(&analysisDefense, "defense", "medium", "Defense level (easy, medium, hard, impossible)")
	tasksAnalysisCmd.Flags().StringVar(&analysisSize, "size", "medium", "Target size (small, medium, large, huge)")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksAnalysisCmd)
	tasksCmd.AddCommand(newTransitionCmd("start", "Start a pending task", "start"))
	tasksCmd.AddCommand(newTransitionCmd("abort", "Abort a task that has not finished", "abort"))
	tasksCmd.AddCommand(newTransitionCmd("archive", "Archive a task", "archive"))
	rootCmd.AddCommand(tasksCmd)
}

func apiCall(method, url string, body any, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &failure); err == nil && failure.Error.Code != "" {
			return fmt.Errorf("%s: %s", failure.Error.Code, failure.Error.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, target)
}
