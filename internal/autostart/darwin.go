package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const agentLabel = "com.streamwatch.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.ExecPath}}</string>
		<string>watch</string>
{{- range .Args}}
		<string>{{.}}</string>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
</dict>
</plist>
`

type DarwinAutoStarter struct {
	home func() (string, error)
	run  func(name string, args ...string) ([]byte, error)
}

func (d *DarwinAutoStarter) agentPath() (string, error) {
	home, err := d.home()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, "Library", "LaunchAgents")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, agentLabel+".plist"), nil
}

func (d *DarwinAutoStarter) Install(execPath string, args []string) error {
	path, err := d.agentPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create launch agent: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	tmpl := template.Must(template.New("plist").Parse(plistTemplate))
	data := map[string]any{"Label": agentLabel, "ExecPath": execPath, "Args": args}
	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write launch agent: %w", err)
	}

	if out, err := d.run("launchctl", "load", "-w", path); err != nil {
		return fmt.Errorf("failed to load launch agent: %w\n%s", err, out)
	}

	return nil
}

func (d *DarwinAutoStarter) Uninstall() error {
	path, err := d.agentPath()
	if err != nil {
		return err
	}

	_, _ = d.run("launchctl", "unload", "-w", path)
	return os.Remove(path)
}

func (d *DarwinAutoStarter) IsInstalled() (bool, error) {
	path, err := d.agentPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
