package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// Relay is a pin the boot script drives to its inactive level.
type Relay struct {
	Label string
	Pin   model.GPIOPin
}

// WriteBootScript writes a shell script that puts every relay in its off
// state, so a reboot never leaves the heater running before the controller
// is back.
func WriteBootScript(path string, relays []Relay) error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Thermostat GPIO pin configuration at boot", "")

	for _, r := range relays {
		drive := "dh"
		if r.Pin.ActiveHigh {
			drive = "dl"
		}
		lines = append(lines, fmt.Sprintf("# %s", r.Label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", r.Pin.Number, drive))
		lines = append(lines, "")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0755)
}

func InstallBootService(unitPath, scriptPath string) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure thermostat GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)

	return os.WriteFile(unitPath, []byte(unitContents), 0644)
}

func RunBootScript(path string) error {
	cmd := exec.Command("/bin/bash", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

type ServiceOptions struct {
	UnitPath   string
	After      string
	User       string
	WorkingDir string
	ExecStart  string
}

// InstallControllerService writes the systemd unit for the controller itself.
func InstallControllerService(opts ServiceOptions) error {
	var deps string
	if opts.After != "" {
		unit := filepath.Base(opts.After)
		deps = fmt.Sprintf("After=%s\nRequires=%s\n", unit, unit)
	}

	var user string
	if opts.User != "" {
		user = fmt.Sprintf("User=%s\n", opts.User)
	}
	var workdir string
	if opts.WorkingDir != "" {
		workdir = fmt.Sprintf("WorkingDirectory=%s\n", opts.WorkingDir)
	}

	unit := fmt.Sprintf(`[Unit]
Description=Thermostat controller
%s
[Service]
Type=simple
%s%sExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, deps, user, workdir, opts.ExecStart)

	return os.WriteFile(opts.UnitPath, []byte(unit), 0644)
}
