package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"streamwatch/internal/model"
	"streamwatch/internal/repository"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var snap model.StatusSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		lastCopy := "-"
		if snap.LastCopy != nil {
			lastCopy = humanize.Time(*snap.LastCopy)
		}

		fmt.Printf("status:    %s (up %s)\n", snap.Status, time.Since(snap.StartedAt).Round(time.Second))
		fmt.Printf("source:    %s\n", snap.Source)
		fmt.Printf("dest:      %s\n", snap.Destination)
		fmt.Printf("copied:    %d (%d verified, %s)\n", snap.Copied, snap.Verified, humanize.IBytes(uint64(snap.Bytes)))
		fmt.Printf("skipped:   %d\n", snap.Skipped)
		fmt.Printf("failed:    %d\n", snap.Failed)
		fmt.Printf("pending:   %d, copying: %d\n", snap.Pending, snap.ActiveCopies)
		fmt.Printf("last copy: %s %s\n", lastCopy, snap.LastCopiedFile)

		stats, err := fetchStats()
		if err != nil {
			return err
		}
		fmt.Printf("all time:  %d records, %d copied (%d verified, %s), %d skipped, %d failed\n",
			stats.Total, stats.Copied, stats.Verified, humanize.IBytes(uint64(stats.Bytes)), stats.Skipped, stats.Failed)

		return nil
	},
}

func fetchStats() (repository.Stats, error) {
	var stats repository.Stats

	resp, err := http.Get(daemonURL("/stats"))
	if err != nil {
		return stats, fmt.Errorf("daemon not running: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("failed to fetch stats: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("failed to decode stats response: %w", err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
