// Package archive extracts the archive formats real toolchain releases
// ship in (tar.gz, tar.xz, tar.bz2, tar.zst, tar.lz, plain tar, zip),
// grounded on the teacher's internal/actions/extract.go: the same format
// dispatch, strip-components handling, and path-traversal/symlink-escape
// defenses, generalized from a recipe action's params map into a plain
// function the install engine (C7) calls directly.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"

	"github.com/vx-dev/vx/internal/vxerr"
)

// Format identifies an archive's compression/container scheme.
type Format string

const (
	TarGz   Format = "tar.gz"
	TarXz   Format = "tar.xz"
	TarBz2  Format = "tar.bz2"
	TarZst  Format = "tar.zst"
	TarLz   Format = "tar.lz"
	Tar     Format = "tar"
	Zip     Format = "zip"
	Unknown Format = "unknown"
)

// DetectFormat infers a Format from an archive's filename, per the
// filename conventions real toolchain releases use.
func DetectFormat(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return TarXz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".tbz"):
		return TarBz2
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return TarZst
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return TarLz
	case strings.HasSuffix(lower, ".tar"):
		return Tar
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	default:
		return Unknown
	}
}

// Options controls an Extract call.
type Options struct {
	// Format forces the archive format. If empty, DetectFormat(archivePath)
	// is used.
	Format Format
	// StripComponents strips this many leading path elements from every
	// entry, matching tar --strip-components semantics (for archives that
	// wrap their contents in a single top-level directory).
	StripComponents int
}

// Extract unpacks archivePath into destDir, which must already exist.
// Every entry is validated to resolve inside destDir before it is
// written; this rejects both ".." path-traversal entries and symlinks
// whose target would escape destDir, matching the teacher's
// isPathWithinDirectory/validateSymlinkTarget defenses.
func Extract(archivePath, destDir string, opts Options) error {
	format := opts.Format
	if format == "" {
		format = DetectFormat(archivePath)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return vxerr.Wrap(vxerr.KindInstallFailed, "failed to open archive "+archivePath, err)
	}
	defer file.Close()

	switch format {
	case TarGz:
		gzr, err := gzip.NewReader(file)
		if err != nil {
			return vxerr.Wrap(vxerr.KindInstallFailed, "failed to create gzip reader", err)
		}
		defer gzr.Close()
		return extractTarReader(tar.NewReader(gzr), destDir, opts.StripComponents)
	case TarXz:
		xzr, err := xz.NewReader(file)
		if err != nil {
			return vxerr.Wrap(vxerr.KindInstallFailed, "failed to create xz reader", err)
		}
		return extractTarReader(tar.NewReader(xzr), destDir, opts.StripComponents)
	case TarBz2:
		return extractTarReader(tar.NewReader(bzip2.NewReader(file)), destDir, opts.StripComponents)
	case TarZst:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return vxerr.Wrap(vxerr.KindInstallFailed, "failed to create zstd reader", err)
		}
		defer zr.Close()
		return extractTarReader(tar.NewReader(zr), destDir, opts.StripComponents)
	case TarLz:
		lr, err := lzip.NewReader(file)
		if err != nil {
			return vxerr.Wrap(vxerr.KindInstallFailed, "failed to create lzip reader", err)
		}
		return extractTarReader(tar.NewReader(lr), destDir, opts.StripComponents)
	case Tar:
		return extractTarReader(tar.NewReader(file), destDir, opts.StripComponents)
	case Zip:
		return extractZip(archivePath, destDir, opts.StripComponents)
	default:
		return vxerr.New(vxerr.KindInstallFailed, "unsupported archive format for "+archivePath)
	}
}

// stripEntry strips the leading strip components from name and reports
// whether the entry should be kept; it returns false when the path had no
// components left after stripping (i.e. it was the wrapper directory itself).
func stripEntry(name string, strip int) (string, bool) {
	clean := strings.TrimPrefix(name, "./")
	parts := strings.Split(clean, "/")
	if len(parts) <= strip {
		return "", false
	}
	return filepath.Join(parts[strip:]...), true
}

// isPathWithinDirectory reports whether targetPath resolves inside basePath.
func isPathWithinDirectory(targetPath, basePath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

// validateSymlinkTarget rejects a symlink whose target is absolute or
// would resolve outside destDir.
func validateSymlinkTarget(linkTarget, linkLocation, destDir string) error {
	if filepath.IsAbs(linkTarget) {
		return vxerr.New(vxerr.KindInstallFailed, fmt.Sprintf("absolute symlink targets are not allowed: %s -> %s", linkLocation, linkTarget))
	}
	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isPathWithinDirectory(resolved, destDir) {
		return vxerr.New(vxerr.KindInstallFailed, fmt.Sprintf("symlink target escapes destination: %s -> %s", linkLocation, linkTarget))
	}
	return nil
}

// atomicSymlink creates a symlink via a temp-then-rename so a partially
// created link is never observed at linkPath.
func atomicSymlink(target, linkPath string) error {
	tmp := linkPath + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func extractTarReader(tr *tar.Reader, destDir string, strip int) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return vxerr.Wrap(vxerr.KindInstallFailed, "failed to read tar header", err)
		}

		relative, keep := stripEntry(header.Name, strip)
		if !keep {
			continue
		}
		target := filepath.Join(destDir, relative)
		if !isPathWithinDirectory(target, destDir) {
			return vxerr.New(vxerr.KindInstallFailed, "archive entry escapes destination: "+header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create directory", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create parent directory", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create file", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to write file", err)
			}
			f.Close()
		case tar.TypeSymlink:
			if err := validateSymlinkTarget(header.Linkname, target, destDir); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create parent directory", err)
			}
			if err := atomicSymlink(header.Linkname, target); err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create symlink", err)
			}
		}
	}
	return nil
}

func extractZip(archivePath, destDir string, strip int) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return vxerr.Wrap(vxerr.KindInstallFailed, "failed to open zip", err)
	}
	defer r.Close()

	for _, f := range r.File {
		relative, keep := stripEntry(f.Name, strip)
		if !keep {
			continue
		}
		target := filepath.Join(destDir, relative)
		if !isPathWithinDirectory(target, destDir) {
			return vxerr.New(vxerr.KindInstallFailed, "zip entry escapes destination: "+f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create directory", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create parent directory", err)
		}

		rc, err := f.Open()
		if err != nil {
			return vxerr.Wrap(vxerr.KindFilesystemError, "failed to open file in zip", err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return vxerr.Wrap(vxerr.KindFilesystemError, "failed to create file", err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			rc.Close()
			return vxerr.Wrap(vxerr.KindFilesystemError, "failed to write file", err)
		}
		out.Close()
		rc.Close()
	}
	return nil
}
