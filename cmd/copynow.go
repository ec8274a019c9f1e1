package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var copyNowCmd = &cobra.Command{
	Use:   "copy-now",
	Short: "Evaluate every tracked file immediately and dispatch the stable ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := postDaemon("/copy-now")
		if err != nil {
			return err
		}

		fmt.Println(status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(copyNowCmd)
}
