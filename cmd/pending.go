package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List files waiting to become stable",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/pending"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Pending []string `json:"pending"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode pending response: %w", err)
		}

		if len(result.Pending) == 0 {
			fmt.Println("no pending files")
			return nil
		}

		for _, path := range result.Pending {
			fmt.Println(path)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
