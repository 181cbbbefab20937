package terraform

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// DefaultVersion is the terraform release the installer downloads.
const DefaultVersion = "1.9.5"

const releaseURLFormat = "https://releases.hashicorp.com/terraform/%[1]s/terraform_%[1]s_%[2]s_%[3]s.zip"

// Installer downloads a terraform release into a local directory so
// runs work on hosts without terraform preinstalled.
type Installer struct {
	// Version is the release version; empty means DefaultVersion.
	Version string

	// Dir is the install directory; empty means ".terraform-bin".
	Dir string

	// Client is the HTTP client used for the download.
	Client *http.Client

	Logger zerolog.Logger
}

// NewInstaller creates an installer with defaults.
func NewInstaller(logger zerolog.Logger) *Installer {
	return &Installer{
		Version: DefaultVersion,
		Dir:     ".terraform-bin",
		Client:  &http.Client{Timeout: 5 * time.Minute},
		Logger:  logger,
	}
}

// Install ensures a terraform binary exists under the install
// directory and returns its path. Idempotent: an existing binary is
// returned without touching the network.
func (i *Installer) Install(ctx context.Context) (string, error) {
	version := i.Version
	if version == "" {
		version = DefaultVersion
	}
	dir := i.Dir
	if dir == "" {
		dir = ".terraform-bin"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create install dir: %w", err)
	}

	binName := "terraform"
	if runtime.GOOS == "windows" {
		binName = "terraform.exe"
	}
	binPath := filepath.Join(dir, binName)
	if _, err := os.Stat(binPath); err == nil {
		return binPath, nil
	}

	url, err := releaseURL(version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}

	i.Logger.Info().Str("url", url).Msg("downloading terraform")

	zipPath := filepath.Join(dir, "terraform.zip")
	if err := i.download(ctx, url, zipPath); err != nil {
		return "", err
	}
	defer os.Remove(zipPath)

	if err := unzip(zipPath, dir); err != nil {
		return "", fmt.Errorf("failed to extract terraform archive: %w", err)
	}

	if err := os.Chmod(binPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to mark terraform executable: %w", err)
	}

	i.Logger.Info().Str("path", binPath).Str("version", version).Msg("terraform installed")
	return binPath, nil
}

func (i *Installer) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("terraform download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("terraform download failed: unexpected status %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write terraform archive: %w", err)
	}
	return nil
}

// releaseURL maps GOOS/GOARCH onto hashicorp release artifact names.
func releaseURL(version, goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "amd64"
	case "arm64":
		arch = "arm64"
	default:
		return "", fmt.Errorf("unsupported architecture %s", goarch)
	}

	switch goos {
	case "linux", "darwin", "windows":
		return fmt.Sprintf(releaseURLFormat, version, goos, arch), nil
	default:
		return "", fmt.Errorf("unsupported platform %s/%s", goos, goarch)
	}
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return err
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}

		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
