package autostart

import (
	"os"
	"os/exec"
	"runtime"
)

const serviceName = "streamwatch"

type AutoStarter interface {
	Install(execPath string, args []string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{run: runCommand}
	case "linux":
		return &LinuxAutoStarter{home: os.UserHomeDir, run: runCommand}
	case "darwin":
		return &DarwinAutoStarter{home: os.UserHomeDir, run: runCommand}
	default:
		return &UnsupportedAutoStarter{}
	}
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ string, _ []string) error {
	return nil
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}
