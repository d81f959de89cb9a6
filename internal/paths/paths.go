package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

// ConfDir returns ~/.vscode-sync-settings.
func ConfDir() string {
	return filepath.Join(home(), ".vscode-sync-settings")
}

// ConfigFile returns the tool's own settings.yml inside confDir.
func ConfigFile(confDir string) string {
	return filepath.Join(confDir, "settings.yml")
}

// StateDir returns the directory holding sync baselines inside confDir.
func StateDir(confDir string) string {
	return filepath.Join(confDir, "state")
}

// DefaultRepositoryDir returns the default location of the local clone.
func DefaultRepositoryDir(confDir string) string {
	return filepath.Join(confDir, "repository")
}

// EditorUserDir returns the editor's user settings directory for the
// current platform.
func EditorUserDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home(), "Library", "Application Support", "Code", "User")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Code", "User")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Code", "User")
		}
		return filepath.Join(home(), ".config", "Code", "User")
	}
}

// Expand resolves a leading ~ to the user's home directory.
func Expand(path string) string {
	if path == "~" {
		return home()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home(), path[2:])
	}
	return path
}
