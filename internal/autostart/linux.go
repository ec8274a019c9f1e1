package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const serviceTemplate = `[Unit]
Description=StreamWatch Stable-File Copy Daemon
After=local-fs.target

[Service]
ExecStart={{.ExecPath}} watch{{.Args}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type LinuxAutoStarter struct {
	home func() (string, error)
	run  func(name string, args ...string) ([]byte, error)
}

func (l *LinuxAutoStarter) unitName() string {
	return serviceName + ".service"
}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	home, err := l.home()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, l.unitName()), nil
}

func (l *LinuxAutoStarter) Install(execPath string, args []string) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create service file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	extra := ""
	if len(args) > 0 {
		extra = " " + strings.Join(args, " ")
	}

	tmpl := template.Must(template.New("service").Parse(serviceTemplate))
	if err := tmpl.Execute(f, map[string]string{"ExecPath": execPath, "Args": extra}); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", l.unitName()},
		{"systemctl", "--user", "start", l.unitName()},
	}

	for _, c := range cmds {
		if out, err := l.run(c[0], c[1:]...); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", c, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", l.unitName()},
		{"systemctl", "--user", "disable", l.unitName()},
	}

	for _, c := range cmds {
		_, _ = l.run(c[0], c[1:]...)
	}

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	return os.Remove(path)
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
