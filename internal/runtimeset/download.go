package runtimeset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vx-dev/vx/internal/archive"
	"github.com/vx-dev/vx/internal/progress"
	"github.com/vx-dev/vx/internal/store"
	"github.com/vx-dev/vx/internal/version"
	"github.com/vx-dev/vx/internal/vxerr"
	"github.com/vx-dev/vx/internal/vxpath"
)

// platformAsset maps GOOS/GOARCH to the {os}/{arch} tokens real release
// asset names use (nodejs.org and python-build-standalone both spell them
// this way; rust-lang/rust does not ship prebuilt release assets at all,
// so its glob patterns are never expected to match).
func platformAsset(goos, goarch string) (string, string) {
	osName := goos
	if goos == "windows" {
		osName = "win"
	}
	archName := goarch
	if goarch == "amd64" {
		archName = "x64"
	}
	return osName, archName
}

// resolveAssetURL finds the GitHub release asset matching one of patterns
// (each a filepath.Match glob already substituted with this runtime's
// version/os/arch) for ver of repo. rctx.DownloadURLCache is consulted
// first, so a locked install (a cached download_url from vx.lock) skips
// the GitHub API round trip entirely, and is populated on a fresh
// resolution so the caller (the install engine) can persist it back.
func resolveAssetURL(rctx *Context, resolver *version.Resolver, repo, runtimeName, ver string, patterns []string) (string, error) {
	if rctx.DownloadURLCache != nil {
		if cached, ok := rctx.DownloadURLCache[runtimeName]; ok && cached != "" {
			return cached, nil
		}
	}

	info, err := resolver.ResolveGitHubVersion(goCtx(rctx), repo, ver)
	if err != nil {
		return "", vxerr.Wrap(vxerr.KindInstallFailed, "failed to resolve release tag for "+runtimeName+"@"+ver, err)
	}

	assets, err := resolver.FetchReleaseAssets(goCtx(rctx), repo, info.Tag)
	if err != nil {
		return "", vxerr.Wrap(vxerr.KindInstallFailed, "failed to list release assets for "+runtimeName+"@"+ver, err)
	}

	var asset string
	for _, p := range patterns {
		if m, merr := version.MatchAssetPattern(p, assets); merr == nil {
			asset = m
			break
		}
	}
	if asset == "" {
		return "", vxerr.New(vxerr.KindInstallFailed,
			"no release asset for "+runtimeName+"@"+ver+" matched this platform").
			WithDetail("checked patterns: " + strings.Join(patterns, ", "))
	}

	url := fmt.Sprintf("https://github.com/%s/releases/download/%s/%s", repo, info.Tag, asset)
	if rctx.DownloadURLCache != nil {
		rctx.DownloadURLCache[runtimeName] = url
	}
	return url, nil
}

// downloadAndInstall downloads downloadURL into a scratch file, optionally
// runs verify against it (checksum/signature validation; nil skips this),
// extracts it into a fresh temp version directory, and atomically renames
// it onto storeName@ver's final location so no partial install is ever
// observed under the real path (invariant I1).
func downloadAndInstall(rctx *Context, downloadURL, storeName, ver string, stripComponents int, verify func(archivePath, assetName string) error) (*InstallResult, error) {
	scratchDir := filepath.Join(vxpath.CacheDir(rctx.Base), "downloads")
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to create download scratch directory", err)
	}
	assetName := filepath.Base(downloadURL)
	archivePath := filepath.Join(scratchDir, storeName+"-"+ver+"-"+assetName)

	if err := downloadToFile(goCtx(rctx), downloadURL, archivePath); err != nil {
		return nil, vxerr.Wrap(vxerr.KindInstallFailed, "failed to download "+downloadURL, err)
	}
	defer os.Remove(archivePath)

	if verify != nil {
		if err := verify(archivePath, assetName); err != nil {
			return nil, err
		}
	}

	return installFromArchive(rctx, archivePath, storeName, ver, stripComponents)
}

// installFromArchive extracts an already-downloaded archive into a fresh
// temp version directory and atomically renames it onto its final store
// location, split out from downloadAndInstall so the extract/rename/find
// path is testable without a network round trip.
func installFromArchive(rctx *Context, archivePath, storeName, ver string, stripComponents int) (*InstallResult, error) {
	base := rctx.Base

	tmpRoot, err := vxpath.TempVersionRoot(base, storeName, ver, tempSuffix())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpRoot, 0755); err != nil {
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to create temp install directory", err)
	}

	if err := archive.Extract(archivePath, tmpRoot, archive.Options{StripComponents: stripComponents}); err != nil {
		os.RemoveAll(tmpRoot)
		return nil, err
	}

	finalRoot, err := vxpath.VersionRoot(base, storeName, ver)
	if err != nil {
		os.RemoveAll(tmpRoot)
		return nil, err
	}
	if err := os.Rename(tmpRoot, finalRoot); err != nil {
		os.RemoveAll(tmpRoot)
		return nil, vxerr.Wrap(vxerr.KindFilesystemError, "failed to finalize install of "+storeName+"@"+ver, err)
	}

	exe, err := store.New(base).FindExecutable(storeName, ver, storeName)
	if err != nil {
		return nil, err
	}
	return &InstallResult{InstallPath: finalRoot, ExecutablePath: exe, Version: ver, Outcome: Installed}, nil
}

// downloadToFile streams downloadURL to destPath, enforcing HTTPS and
// showing a progress bar when stdout is a terminal, grounded on the
// teacher's download_file action's downloadFileHTTP.
func downloadToFile(ctx context.Context, downloadURL, destPath string) error {
	if !strings.HasPrefix(downloadURL, "https://") {
		return vxerr.New(vxerr.KindInstallFailed, "download URL must use HTTPS, got "+downloadURL)
	}

	client := version.NewHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, downloadURL)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if progress.ShouldShowProgress() && resp.ContentLength > 0 {
		pw := progress.NewWriter(out, resp.ContentLength, os.Stdout)
		defer pw.Finish()
		_, err = io.Copy(pw, resp.Body)
		return err
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

// tempSuffix returns a name unique enough to avoid collisions between
// concurrent installs of the same (runtime, version) pair.
func tempSuffix() string {
	return strconv.FormatInt(int64(os.Getpid()), 36) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
