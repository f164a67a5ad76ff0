package provision

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

type DiscoverConfig struct {
	Candidates  []string `yaml:"candidates"`
	Interpreter []string `yaml:"interpreter,omitempty"`
	Args        []string `yaml:"args,omitempty"`
}

// DiscoverScript runs the first candidate file that exists
type DiscoverScript struct {
	config DiscoverConfig
	logger logging.Logger
}

func NewDiscoverScript(config DiscoverConfig, logger logging.Logger) *DiscoverScript {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DiscoverScript{config: config, logger: logger}
}

func (d *DiscoverScript) Name() string {
	return string(ProvisionerTypeDiscover)
}

func (d *DiscoverScript) Provision(_ context.Context, _ *envconfig.EffectiveConfig) (*Artifact, error) {
	for _, candidate := range d.config.Candidates {
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			d.logger.Debugf("Script candidate not usable, path: %s", candidate)
			continue
		}
		d.logger.Infof("Discovered script, path: %s", candidate)
		return scriptArtifact(candidate, d.config.Interpreter, d.config.Args, "")
	}

	return nil, errors.NewProvisioningError("no script found", nil).
		WithContext("candidates", strings.Join(d.config.Candidates, ", "))
}

type InlineConfig struct {
	Path        string   `yaml:"path"`
	Content     string   `yaml:"content"`
	Interpreter []string `yaml:"interpreter,omitempty"`
	Args        []string `yaml:"args,omitempty"`
}

// InlineScript writes generated script content to disk and runs it. The
// content is opaque and rewritten on every boot.
type InlineScript struct {
	config InlineConfig
	logger logging.Logger
}

func NewInlineScript(config InlineConfig, logger logging.Logger) *InlineScript {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &InlineScript{config: config, logger: logger}
}

func (s *InlineScript) Name() string {
	return string(ProvisionerTypeInline)
}

func (s *InlineScript) Provision(_ context.Context, _ *envconfig.EffectiveConfig) (*Artifact, error) {
	path := s.config.Path
	if path == "" {
		return nil, errors.NewProvisioningError("inline script path is empty", nil)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewProvisioningError("failed to create script directory", err).WithContext("directory", dir)
		}
	}
	if err := os.WriteFile(path, []byte(s.config.Content), 0755); err != nil {
		return nil, errors.NewProvisioningError("failed to write script", err).WithContext("path", path)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0755); err != nil {
		return nil, errors.NewProvisioningError("failed to set executable permission", err).WithContext("path", path)
	}

	s.logger.Infof("Script written, path: %s, bytes: %d", path, len(s.config.Content))
	return scriptArtifact(path, s.config.Interpreter, s.config.Args, "")
}
