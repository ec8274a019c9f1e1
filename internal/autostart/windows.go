package autostart

import (
	"fmt"
	"strings"
)

const taskName = "StreamWatchDaemon"

type WindowsAutoStarter struct {
	run func(name string, args ...string) ([]byte, error)
}

func (w *WindowsAutoStarter) Install(execPath string, args []string) error {
	tr := fmt.Sprintf(`"%s" watch`, execPath)
	if len(args) > 0 {
		tr += " " + strings.Join(args, " ")
	}

	out, err := w.run("schtasks", "/create",
		"/TN", taskName,
		"/TR", tr,
		"/SC", "ONLOGON",
		"/RL", "LIMITED",
		"/F")
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	out, err := w.run("schtasks", "/DELETE", "/TN", taskName, "/F")
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	if _, err := w.run("schtasks", "/Query", "/TN", taskName); err != nil {
		return false, nil
	}

	return true, nil
}
