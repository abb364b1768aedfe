// Package linkshim materializes references from envs and global shims into
// the store: symlinks where the platform allows, deep copies where it
// doesn't, and Windows launcher scripts as a last resort. Grounded on the
// teacher's install/manager.go symlink and directory-copy code, generalized
// from "symlink into current/" to "symlink into any env or shim path".
package linkshim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vx-dev/vx/internal/vxerr"
)

// Strategy selects how create_link materializes a reference, per §4.4.
type Strategy int

const (
	// SymLink creates a real filesystem symlink. Preferred everywhere it works.
	SymLink Strategy = iota
	// Copy performs a deep copy of target into link_path. Used when the
	// platform cannot create symlinks without elevated privileges.
	Copy
	// Launcher writes a small script that execs the target with argv
	// forwarded and exit code propagated. Windows-only.
	Launcher
)

// CreateLink materializes a reference from linkPath to target using
// strategy, per §4.4's invariants: linkPath's parent must exist; an
// existing linkPath (file, symlink, or directory) is removed first; on
// failure, no stale link remains.
func CreateLink(target, linkPath string, strategy Strategy) error {
	parent := filepath.Dir(linkPath)
	if _, err := os.Stat(parent); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "link parent directory does not exist: "+parent, err)
	}

	if err := removeExisting(linkPath); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to remove existing link at "+linkPath, err)
	}

	switch strategy {
	case SymLink:
		return createSymlink(target, linkPath)
	case Copy:
		return createCopy(target, linkPath)
	case Launcher:
		return createLauncher(target, linkPath)
	default:
		return fmt.Errorf("unknown link strategy %d", strategy)
	}
}

// removeExisting deletes whatever currently occupies linkPath, whether it
// is a plain file, a symlink, or a directory tree (from a prior Copy).
func removeExisting(linkPath string) error {
	if _, err := os.Lstat(linkPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(linkPath)
}

// createSymlink creates linkPath -> target atomically: the new symlink is
// built at a temporary sibling name first, then renamed over linkPath, so
// a crash mid-creation cannot leave a half-written link.
func createSymlink(target, linkPath string) error {
	tmpPath := linkPath + ".linkshim-tmp"
	os.Remove(tmpPath)
	if err := os.Symlink(target, tmpPath); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create symlink", err)
	}
	if err := os.Rename(tmpPath, linkPath); err != nil {
		os.Remove(tmpPath)
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to install symlink", err)
	}
	return nil
}

// createCopy deep-copies target (file or directory tree) to linkPath.
func createCopy(target, linkPath string) error {
	info, err := os.Stat(target)
	if err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "link target does not exist: "+target, err)
	}
	if info.IsDir() {
		return copyDir(target, linkPath)
	}
	return copyFile(target, linkPath, info.Mode())
}

// createLauncher writes a Windows batch launcher that forwards argv to
// target and propagates its exit code.
func createLauncher(target, linkPath string) error {
	if !strings.HasSuffix(linkPath, ".bat") && !strings.HasSuffix(linkPath, ".cmd") {
		linkPath += ".bat"
	}
	content := launcherScript(target)
	tmpPath := linkPath + ".linkshim-tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0755); err != nil {
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to write launcher script", err)
	}
	if err := os.Rename(tmpPath, linkPath); err != nil {
		os.Remove(tmpPath)
		return vxerr.Wrap(vxerr.KindFilesystemError, "failed to install launcher script", err)
	}
	return nil
}

// launcherScript renders a batch file that execs target with all
// arguments and propagates the exit code via %ERRORLEVEL%.
func launcherScript(target string) string {
	var sb strings.Builder
	sb.WriteString("@echo off\r\n")
	sb.WriteString(fmt.Sprintf("\"%s\" %%*\r\n", target))
	sb.WriteString("exit /b %ERRORLEVEL%\r\n")
	return sb.String()
}

func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	os.Remove(dst)
	return os.Symlink(target, dst)
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// ReadLinkTarget resolves the target a symlink at linkPath points to, used
// by env `list()` (§4.7) to recover the (runtime, version) a link names.
func ReadLinkTarget(linkPath string) (string, error) {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return "", vxerr.Wrap(vxerr.KindFilesystemError, "failed to read link "+linkPath, err)
	}
	return target, nil
}
