package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"streamwatch/internal/autostart"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the daemon to start at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		var extra []string
		if configFile != "" {
			abs, err := filepath.Abs(configFile)
			if err != nil {
				return fmt.Errorf("failed to resolve config path: %w", err)
			}
			extra = append(extra, "--config", abs)
		}

		as := autostart.New()
		if err := as.Install(execPath, extra); err != nil {
			return err
		}

		fmt.Println("streamwatch daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
