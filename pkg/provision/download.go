package provision

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

const (
	DefaultDownloadName    = "sbx"
	DefaultDownloadTimeout = 5 * time.Minute
)

type DownloadConfig struct {
	// URLs keyed by architecture: amd64, arm64 or s390x
	URLs        map[string]string `yaml:"urls"`
	Destination string            `yaml:"destination,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
}

// NormalizeArch maps the spellings reported by different platforms onto
// amd64, arm64 and s390x
func NormalizeArch(arch string) (string, bool) {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch {
	case strings.Contains(arch, "amd64"), strings.Contains(arch, "x86_64"):
		return "amd64", true
	case strings.Contains(arch, "aarch64"), strings.Contains(arch, "arm64"):
		return "arm64", true
	case strings.Contains(arch, "s390x"):
		return "s390x", true
	default:
		return "", false
	}
}

// DownloadBinary fetches a per-architecture binary once and reuses it afterwards
type DownloadBinary struct {
	config DownloadConfig
	arch   string
	client *http.Client
	logger logging.Logger
}

func NewDownloadBinary(config DownloadConfig, logger logging.Logger) *DownloadBinary {
	if config.Destination == "" {
		config.Destination = filepath.Join(os.TempDir(), DefaultDownloadName)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDownloadTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	urls := make(map[string]string, len(config.URLs))
	for arch, url := range config.URLs {
		if normalized, ok := NormalizeArch(arch); ok {
			urls[normalized] = url
		}
	}
	config.URLs = urls

	return &DownloadBinary{
		config: config,
		arch:   runtime.GOARCH,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

func (d *DownloadBinary) WithHTTPClient(client *http.Client) *DownloadBinary {
	if client != nil {
		d.client = client
	}
	return d
}

// WithArch overrides the detected architecture
func (d *DownloadBinary) WithArch(arch string) *DownloadBinary {
	d.arch = arch
	return d
}

func (d *DownloadBinary) Name() string {
	return string(ProvisionerTypeDownload)
}

func (d *DownloadBinary) Provision(ctx context.Context, _ *envconfig.EffectiveConfig) (*Artifact, error) {
	destination, err := absolutePath(d.config.Destination)
	if err != nil {
		return nil, err
	}
	artifact := &Artifact{Path: destination, Args: append([]string(nil), d.config.Args...)}

	if info, err := os.Stat(destination); err == nil && info.Mode().IsRegular() {
		d.logger.Infof("Reusing downloaded binary, path: %s", destination)
		return artifact, nil
	}

	arch, ok := NormalizeArch(d.arch)
	if !ok {
		return nil, errors.NewProvisioningError("unsupported architecture: "+d.arch, nil)
	}
	url, ok := d.config.URLs[arch]
	if !ok || url == "" {
		return nil, errors.NewProvisioningError("no download URL for architecture: "+arch, nil)
	}

	d.logger.Infof("Downloading binary, arch: %s, url: %s, path: %s", arch, url, destination)
	if err := d.fetch(ctx, url, destination); err != nil {
		return nil, err
	}
	d.logger.Infof("Binary downloaded, path: %s", destination)

	return artifact, nil
}

func (d *DownloadBinary) fetch(ctx context.Context, url string, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewProvisioningError("invalid download URL", err).WithContext("url", url)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.NewProvisioningError("download failed", err).WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewProvisioningError("download returned unexpected status", nil).
			WithContext("url", url).
			WithContext("status", resp.StatusCode)
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewProvisioningError("failed to create download directory", err).WithContext("directory", dir)
	}

	// Write next to the destination and rename, so a partial download never looks complete
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*")
	if err != nil {
		return errors.NewProvisioningError("failed to create temporary file", err).WithContext("directory", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.NewProvisioningError("failed to write download", err).WithContext("url", url)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewProvisioningError("failed to write download", err).WithContext("url", url)
	}
	if err := os.Chmod(tmpName, 0755); err != nil {
		return errors.NewProvisioningError("failed to set executable permission", err).WithContext("path", tmpName)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return errors.NewProvisioningError("failed to move download into place", err).WithContext("path", destination)
	}
	return nil
}
