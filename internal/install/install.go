// Package install writes the login-launch integration: a launchd agent that
// keeps `warden watch` running for the login session, and a ~/bin wrapper
// script. Both are thin glue around the engine; no decision logic here.
package install

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const agentLabel = "com.wardend.warden"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Binary}}</string>
        <string>watch</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>EnvironmentVariables</key>
    <dict>
        <key>PATH</key>
        <string>{{.Path}}</string>
        <key>LANG</key>
        <string>{{.Lang}}</string>
    </dict>
</dict>
</plist>
`

var plistTmpl = template.Must(template.New("plist").Parse(plistTemplate))

// Installer generates and places the login-launch files.
type Installer struct {
	// Binary is the warden executable the agent and wrapper invoke.
	Binary string
	// WatchLogPath receives the watch daemon's stdout/stderr.
	WatchLogPath string
	// Home overrides the user home directory (tests).
	Home string
	// RunLaunchctl toggles the launchctl load/unload calls.
	RunLaunchctl bool
}

// New returns an installer for the current executable and home directory.
func New(watchLogPath string) (*Installer, error) {
	bin, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Installer{Binary: bin, WatchLogPath: watchLogPath, Home: home, RunLaunchctl: true}, nil
}

// AgentPath is where the launchd descriptor lives.
func (i *Installer) AgentPath() string {
	return filepath.Join(i.Home, "Library", "LaunchAgents", agentLabel+".plist")
}

// WrapperPath is where the wrapper script lives.
func (i *Installer) WrapperPath() string {
	return filepath.Join(i.Home, "bin", "warden")
}

// PlistContent renders the agent descriptor with the current environment's
// PATH and LANG captured, so the daemon sees the same toolchain the
// installing shell did.
func (i *Installer) PlistContent() (string, error) {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"
	}
	lang := os.Getenv("LANG")
	if lang == "" {
		lang = "en_US.UTF-8"
	}
	var b strings.Builder
	err := plistTmpl.Execute(&b, map[string]string{
		"Label":   agentLabel,
		"Binary":  i.Binary,
		"LogPath": i.WatchLogPath,
		"Path":    path,
		"Lang":    lang,
	})
	return b.String(), err
}

// WrapperContent renders the ~/bin wrapper script.
func (i *Installer) WrapperContent() string {
	return fmt.Sprintf("#!/bin/bash\n# delegates all commands to the installed warden binary\nexec %s \"$@\"\n", i.Binary)
}

// InstallAgent writes the descriptor and (re)loads it.
func (i *Installer) InstallAgent() error {
	agentPath := i.AgentPath()
	if err := os.MkdirAll(filepath.Dir(agentPath), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(i.WatchLogPath), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(agentPath); err == nil && i.RunLaunchctl {
		// Already loaded from a previous install; unload first, best-effort.
		_ = exec.Command("launchctl", "unload", agentPath).Run()
	}
	content, err := i.PlistContent()
	if err != nil {
		return err
	}
	if err := os.WriteFile(agentPath, []byte(content), 0o644); err != nil {
		return err
	}
	if i.RunLaunchctl {
		if out, err := exec.Command("launchctl", "load", agentPath).CombinedOutput(); err != nil {
			return fmt.Errorf("load launch agent: %v: %s", err, out)
		}
	}
	return nil
}

// UninstallAgent unloads and removes the descriptor.
func (i *Installer) UninstallAgent() error {
	agentPath := i.AgentPath()
	if _, err := os.Stat(agentPath); err != nil {
		return fmt.Errorf("launch agent not installed at %s", agentPath)
	}
	if i.RunLaunchctl {
		if out, err := exec.Command("launchctl", "unload", agentPath).CombinedOutput(); err != nil {
			return fmt.Errorf("unload launch agent: %v: %s", err, out)
		}
	}
	return os.Remove(agentPath)
}

// InstallWrapper writes the executable wrapper script.
func (i *Installer) InstallWrapper() error {
	wrapperPath := i.WrapperPath()
	if err := os.MkdirAll(filepath.Dir(wrapperPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(wrapperPath, []byte(i.WrapperContent()), 0o755)
}

// UninstallWrapper removes the wrapper script.
func (i *Installer) UninstallWrapper() error {
	wrapperPath := i.WrapperPath()
	if _, err := os.Stat(wrapperPath); err != nil {
		return fmt.Errorf("wrapper script not installed at %s", wrapperPath)
	}
	return os.Remove(wrapperPath)
}
