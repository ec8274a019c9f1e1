package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"streamwatch/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View copy history",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d&failed=%t", daemonURL("/history"), historyN, historyFailed)
		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var histories []model.History
		if err := json.NewDecoder(resp.Body).Decode(&histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			if historyFailed {
				fmt.Println("no failed copies")
				return nil
			}
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			switch h.Outcome {
			case model.OutcomeFailed:
				status = "✗"
			case model.OutcomeSkipped:
				status = "-"
			}

			fmt.Printf("%s [%s] %-7s %-9s %s -> %s\n",
				status,
				h.CopiedAt.Format("2006-01-02 15:04:05"),
				h.Outcome,
				humanize.IBytes(uint64(h.Size)),
				h.SrcPath,
				h.DstPath,
			)
			if h.ErrMsg != "" {
				fmt.Printf("    %s: %s\n", h.Reason, h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed copies only")
	rootCmd.AddCommand(historyCmd)
}
