package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"streamwatch/internal/config"
	"streamwatch/internal/db"
	"streamwatch/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "streamwatch",
	Short:        "Copy finished files from a watched folder to an archive",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		if cmd.Name() == "watch" {
			dbFile, err := cfg.DBFile()
			if err != nil {
				return err
			}
			if err := db.Init(dbFile); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

// postDaemon sends a control request and returns the daemon's status field.
func postDaemon(path string) (string, error) {
	resp, err := http.Post(daemonURL(path), "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("daemon not running: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("daemon rejected request: %s", result["error"])
	}

	return result["status"], nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.streamwatch/config.yaml)")
}
