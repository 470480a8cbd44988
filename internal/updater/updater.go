// Package updater checks GitHub for newer releases of the note binary and
// can replace the running executable in place.
//
// The release API needs no auth for public repos. The new binary is
// written next to the old one and renamed over it, so an interrupted
// update leaves the old binary intact. The server is never restarted.
package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const (
	githubRepo = "ChienNQuang/Note"
	releaseURL = "https://api.github.com/repos/" + githubRepo + "/releases/latest"

	// binaryName is the executable packed inside every release archive.
	binaryName = "note"

	checkTimeout = 10 * time.Second
)

// Overridden in tests.
var (
	releaseEndpoint = releaseURL
	httpClient      = &http.Client{Timeout: checkTimeout}
	executable      = os.Executable
)

// ErrUpToDate is returned by SelfUpdate when no newer release exists.
var ErrUpToDate = errors.New("already at the latest version")

// Release holds the fields of a GitHub release that matter here.
type Release struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Check is the outcome of CheckVersion.
type Check struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

// CheckVersion compares currentVersion with the latest release. Network
// and API failures are swallowed: the result then reports no update.
func CheckVersion(ctx context.Context, currentVersion string) *Check {
	c := &Check{CurrentVersion: normalizeVersion(currentVersion)}
	rel, err := latestRelease(ctx, currentVersion)
	if err != nil {
		return c
	}
	c.LatestVersion = normalizeVersion(rel.TagName)
	c.ReleaseURL = rel.HTMLURL
	c.UpdateAvailable = isNewer(c.CurrentVersion, c.LatestVersion)
	return c
}

// SelfUpdate downloads the release archive for this OS and architecture
// and swaps it in for the running executable. It returns the installed
// version.
func SelfUpdate(ctx context.Context, currentVersion string) (string, error) {
	if runtime.GOOS == "windows" {
		return "", fmt.Errorf("self-update is not supported on windows, download from https://github.com/%s/releases", githubRepo)
	}

	rel, err := latestRelease(ctx, currentVersion)
	if err != nil {
		return "", err
	}
	latest := normalizeVersion(rel.TagName)
	if !isNewer(normalizeVersion(currentVersion), latest) {
		return "", fmt.Errorf("%w (%s)", ErrUpToDate, normalizeVersion(currentVersion))
	}

	name := assetName(latest, runtime.GOOS, runtime.GOARCH)
	var url string
	for _, a := range rel.Assets {
		if a.Name == name {
			url = a.BrowserDownloadURL
			break
		}
	}
	if url == "" {
		return "", fmt.Errorf("no release asset for %s/%s (looking for %s)", runtime.GOOS, runtime.GOARCH, name)
	}

	body, err := get(ctx, url, currentVersion)
	if err != nil {
		return "", fmt.Errorf("downloading release: %w", err)
	}
	defer func() { _ = body.Close() }()

	bin, err := extractFromTarGz(body)
	if err != nil {
		return "", fmt.Errorf("extracting binary: %w", err)
	}

	path, err := executable()
	if err != nil {
		return "", fmt.Errorf("finding current executable: %w", err)
	}
	if path, err = filepath.EvalSymlinks(path); err != nil {
		return "", fmt.Errorf("resolving symlinks: %w", err)
	}
	// atomic.WriteFile keeps the mode of the file it replaces.
	if err := atomic.WriteFile(path, bytes.NewReader(bin)); err != nil {
		return "", fmt.Errorf("replacing binary: %w", err)
	}
	return latest, nil
}

func latestRelease(ctx context.Context, currentVersion string) (*Release, error) {
	body, err := get(ctx, releaseEndpoint, currentVersion)
	if err != nil {
		return nil, fmt.Errorf("checking latest release: %w", err)
	}
	defer func() { _ = body.Close() }()

	var rel Release
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("parsing release info: %w", err)
	}
	return &rel, nil
}

func get(ctx context.Context, url, currentVersion string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", binaryName+"/"+currentVersion)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// extractFromTarGz returns the note binary packed in a .tar.gz archive.
func extractFromTarGz(r io.Reader) ([]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s binary not found in archive", binaryName)
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg && filepath.Base(hdr.Name) == binaryName {
			return io.ReadAll(tr)
		}
	}
}

// assetName matches the GoReleaser name_template of the release archives.
func assetName(version, goos, goarch string) string {
	return fmt.Sprintf("%s_%s_%s_%s.tar.gz", binaryName, version, goos, goarch)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer reports whether latest is a higher major.minor.patch than
// current. Missing parts count as 0; pre-release suffixes are ignored.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}
	c, l := versionParts(current), versionParts(latest)
	for i := range c {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func versionParts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		// "3-rc1" -> 3
		if j := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }); j >= 0 {
			p = p[:j]
		}
		out[i], _ = strconv.Atoi(p)
	}
	return out
}
