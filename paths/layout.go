// Package paths derives the daemon's on-disk layout from the user's home
// directory: the control socket, the per-program logs directory, and the
// registry database path.
package paths

import (
	"os"
	"path/filepath"

	"github.com/wacker-dev/wackerd/errors"
)

const mainDirName = ".wacker"

// Layout is the resolved set of filesystem paths the daemon and its
// collaborators agree on.
type Layout struct {
	Root     string
	SockPath string
	LogsDir  string
	DBPath   string
}

// Default resolves the layout rooted at $HOME/.wacker.
func Default() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return Layout{}, errors.InvalidInput(errors.PhaseSupervise, "can't get home dir")
	}
	return NewLayout(filepath.Join(home, mainDirName)), nil
}

// NewLayout builds a layout rooted at an arbitrary directory, primarily for
// tests and the daemon's -dir override flag.
func NewLayout(root string) Layout {
	return Layout{
		Root:     root,
		SockPath: filepath.Join(root, "wacker.sock"),
		LogsDir:  filepath.Join(root, "logs"),
		DBPath:   filepath.Join(root, "db"),
	}
}

// EnsureDirs creates the root and logs directories if they don't exist. The
// db path is a file managed by the registry backend, not created here.
func (l Layout) EnsureDirs() error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(l.LogsDir, 0o755)
}

// LogPath returns the path of the log file for a given program id.
func (l Layout) LogPath(id string) string {
	return filepath.Join(l.LogsDir, id)
}
