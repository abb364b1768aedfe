package runtimeset

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

func TestFindChecksum(t *testing.T) {
	listing := strings.Join([]string{
		"abc123  node-v20.11.0-linux-x64.tar.gz",
		"def456  node-v20.11.0-darwin-arm64.tar.gz",
		"",
	}, "\n")

	got, err := findChecksum(listing, "node-v20.11.0-linux-x64.tar.gz")
	if err != nil {
		t.Fatalf("findChecksum() failed: %v", err)
	}
	if got != "abc123" {
		t.Errorf("findChecksum() = %q, want %q", got, "abc123")
	}

	if _, err := findChecksum(listing, "missing.tar.gz"); err == nil {
		t.Error("findChecksum() should fail for an asset not in the listing")
	}
}

func TestSha256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	sum, err := sha256File(path)
	if err != nil {
		t.Fatalf("sha256File() failed: %v", err)
	}
	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if sum != want {
		t.Errorf("sha256File() = %q, want %q", sum, want)
	}
}

func TestVerifyRelease_ValidSignatureAndChecksum(t *testing.T) {
	key, err := crypto.GenerateKey("Test Release", "releases@example.com", "rsa", 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	publicKey, err := key.ToPublic()
	if err != nil {
		t.Fatalf("failed to derive public key: %v", err)
	}
	armoredKey, err := publicKey.GetArmored()
	if err != nil {
		t.Fatalf("failed to armor public key: %v", err)
	}

	archiveContent := []byte("fake archive bytes")
	archivePath := filepath.Join(t.TempDir(), "node-v20.11.0-linux-x64.tar.gz")
	if err := os.WriteFile(archivePath, archiveContent, 0644); err != nil {
		t.Fatal(err)
	}
	sum, err := sha256File(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	checksums := sum + "  node-v20.11.0-linux-x64.tar.gz\n"

	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		t.Fatalf("failed to create signing keyring: %v", err)
	}
	signature, err := keyRing.SignDetached(crypto.NewPlainMessage([]byte(checksums)))
	if err != nil {
		t.Fatalf("failed to sign checksums: %v", err)
	}
	armoredSig, err := signature.GetArmored()
	if err != nil {
		t.Fatalf("failed to armor signature: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/SHASUMS256.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, checksums)
	})
	mux.HandleFunc("/SHASUMS256.txt.sig", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, armoredSig)
	})
	mux.HandleFunc("/key", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, armoredKey)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &releaseKeyConfig{
		keyURL:      srv.URL + "/key",
		fingerprint: strings.ToUpper(publicKey.GetFingerprint()),
		checksumsURL: func(string) string {
			return srv.URL + "/SHASUMS256.txt"
		},
		signatureURL: func(string) string {
			return srv.URL + "/SHASUMS256.txt.sig"
		},
	}

	if err := verifyRelease(context.Background(), cfg, archivePath, "node-v20.11.0-linux-x64.tar.gz", "20.11.0"); err != nil {
		t.Errorf("verifyRelease() failed on a validly signed release: %v", err)
	}

	if err := os.WriteFile(archivePath, []byte("tampered bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := verifyRelease(context.Background(), cfg, archivePath, "node-v20.11.0-linux-x64.tar.gz", "20.11.0"); err == nil {
		t.Error("verifyRelease() should fail when the archive's checksum no longer matches")
	}
}
