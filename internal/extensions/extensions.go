// Package extensions reads and changes the editor's installed-extension
// list by shelling out to its CLI.
package extensions

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/lazyyq/vscode-sync-settings/internal/snapshot"
)

// Installer is what the orchestrator needs to reconcile the extension
// list. CLI is the real implementation; tests substitute fakes.
type Installer interface {
	List() ([]snapshot.Extension, error)
	Install(id string) error
	Uninstall(id string) error
}

// CLI drives an editor binary (code, codium, ...) that understands the
// --install-extension / --list-extensions flags.
type CLI struct {
	Bin string
}

// List returns the installed extensions, parsed from
// `<bin> --list-extensions --show-versions` (one id@version per line).
func (c *CLI) List() ([]snapshot.Extension, error) {
	out, err := exec.Command(c.Bin, "--list-extensions", "--show-versions").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %s: %s", err, strings.TrimSpace(string(out)))
	}
	var exts []snapshot.Extension
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ext := snapshot.Extension{ID: line}
		if idx := strings.LastIndex(line, "@"); idx > 0 {
			ext.ID = line[:idx]
			ext.Version = line[idx+1:]
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

// Install installs one extension by identifier.
func (c *CLI) Install(id string) error {
	out, err := exec.Command(c.Bin, "--install-extension", id).CombinedOutput()
	if err != nil {
		return fmt.Errorf("installing %s: %s: %s", id, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Uninstall removes one extension by identifier.
func (c *CLI) Uninstall(id string) error {
	out, err := exec.Command(c.Bin, "--uninstall-extension", id).CombinedOutput()
	if err != nil {
		return fmt.Errorf("uninstalling %s: %s: %s", id, err, strings.TrimSpace(string(out)))
	}
	return nil
}
