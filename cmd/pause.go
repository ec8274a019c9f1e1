package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop dispatching new copies; in-flight copies finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := postDaemon("/pause")
		if err != nil {
			return err
		}

		fmt.Println(status)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume dispatching copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := postDaemon("/resume")
		if err != nil {
			return err
		}

		fmt.Println(status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}
