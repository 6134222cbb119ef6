package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the canonical runtime folder layout under the data directory.
type Paths struct {
	DataDir    string
	Unreviewed string
	Approved   string
	Registered string
	Tmp        string
	Records    string
}

// DerivePaths computes the folder layout rooted at dataDir.
func DerivePaths(dataDir string) Paths {
	return Paths{
		DataDir:    dataDir,
		Unreviewed: filepath.Join(dataDir, "emoji_unreviewed"),
		Approved:   filepath.Join(dataDir, "emoji_approved"),
		Registered: filepath.Join(dataDir, "emoji_registered"),
		Tmp:        filepath.Join(dataDir, "tmp"),
		Records:    filepath.Join(dataDir, "emoji_records.json"),
	}
}

// EnsureStateDirs creates the runtime folder layout. It rejects symlinked
// paths and paths occupied by regular files.
func EnsureStateDirs(p Paths) error {
	for _, dir := range []string{p.DataDir, p.Unreviewed, p.Approved, p.Registered, p.Tmp} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}
	}
	return nil
}
