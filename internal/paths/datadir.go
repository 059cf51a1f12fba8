package paths

import (
	"os"
	"path/filepath"
)

const appDir = "crn-node"

// DefaultDataDir returns a per-user directory appropriate for persisting node state.
// It prefers os.UserConfigDir and falls back to the current directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDir)
	}
	return "." + appDir
}

// PeerDB is the default address book location for the named node.
func PeerDB(dataDir, name string) string {
	return filepath.Join(dataDir, sanitize(name), "peers.db")
}

// sanitize maps a node name onto a single path element.
func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
