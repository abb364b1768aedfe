package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func writeTarGz(t *testing.T, path string, entries map[string]string, dirs []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)

	for _, d := range dirs {
		if err := tw.WriteHeader(&tar.Header{Name: d + "/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"node-v20.11.0.tar.gz":  TarGz,
		"rust-1.75.0.tar.xz":    TarXz,
		"thing.tbz2":            TarBz2,
		"thing.tar.zst":         TarZst,
		"thing.tar.lz":          TarLz,
		"plain.tar":             Tar,
		"archive.zip":           Zip,
		"mystery.7z":            Unknown,
	}
	for name, want := range cases {
		if got := DetectFormat(name); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestExtract_TarGz(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"bin/node": "binary-content",
	}, []string{"bin"})

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{}); err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "bin", "node"))
	if err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
	if string(content) != "binary-content" {
		t.Errorf("content = %q, want binary-content", content)
	}
}

func TestExtract_StripComponents(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"node-v20.11.0-linux-x64/bin/node": "binary-content",
	}, []string{"node-v20.11.0-linux-x64", "node-v20.11.0-linux-x64/bin"})

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{StripComponents: 1}); err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "bin", "node")); err != nil {
		t.Errorf("expected stripped path bin/node to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "node-v20.11.0-linux-x64")); err == nil {
		t.Error("expected wrapper directory to not appear in output")
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.zip")
	writeZip(t, archivePath, map[string]string{
		"bin/tool.exe": "binary-content",
	})

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{}); err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "bin", "tool.exe")); err != nil {
		t.Errorf("expected extracted file: %v", err)
	}
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	content := []byte("evil")
	hdr := &tar.Header{Name: "../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	tw.Write(content)
	tw.Close()
	gzw.Close()
	f.Close()

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{}); err == nil {
		t.Error("expected Extract to reject a path-traversal entry")
	}
}

func TestExtract_RejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	hdr := &tar.Header{Name: "escape-link", Typeflag: tar.TypeSymlink, Linkname: "../../outside", Mode: 0777}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gzw.Close()
	f.Close()

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{}); err == nil {
		t.Error("expected Extract to reject an escaping symlink target")
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.rar")
	os.WriteFile(archivePath, []byte("not an archive"), 0644)

	dest := t.TempDir()
	if err := Extract(archivePath, dest, Options{}); err == nil {
		t.Error("expected Extract to reject an unsupported format")
	}
}
