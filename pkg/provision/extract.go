package provision

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/process"
)

type ExtractConfig struct {
	Archive     string   `yaml:"archive"`
	Directory   string   `yaml:"directory"`
	Entry       string   `yaml:"entry"`
	Interpreter []string `yaml:"interpreter,omitempty"`
	Args        []string `yaml:"args,omitempty"`
}

// ExtractArchive unpacks a gzipped tarball with the system tar and runs an
// entry script from it
type ExtractArchive struct {
	config ExtractConfig
	output io.Writer
	logger logging.Logger
}

func NewExtractArchive(config ExtractConfig, output io.Writer, logger logging.Logger) *ExtractArchive {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ExtractArchive{
		config: config,
		output: output,
		logger: logger,
	}
}

func (e *ExtractArchive) Name() string {
	return string(ProvisionerTypeExtract)
}

func (e *ExtractArchive) Provision(ctx context.Context, _ *envconfig.EffectiveConfig) (*Artifact, error) {
	archive := e.config.Archive
	directory := e.config.Directory

	if info, err := os.Stat(archive); err != nil || !info.Mode().IsRegular() {
		return nil, errors.NewProvisioningError("archive not found", err).WithContext("archive", archive)
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.NewProvisioningError("failed to create extraction directory", err).WithContext("directory", directory)
	}

	e.logger.Infof("Extracting archive, archive: %s, directory: %s", archive, directory)
	execution := process.ExecutionConfig{
		ExecutablePath: "tar",
		Args:           []string{"-xzf", archive, "-C", directory},
	}
	if err := process.RunToCompletion(ctx, execution, "extract", process.NewPrefixedWriter("extract", e.output), e.logger); err != nil {
		return nil, err
	}

	entry := filepath.Join(directory, e.config.Entry)
	if _, err := os.Stat(entry); err != nil {
		return nil, errors.NewProvisioningError("entry not found in extracted archive", err).WithContext("entry", entry)
	}

	e.logger.Infof("Archive extracted, entry: %s", entry)
	return scriptArtifact(entry, e.config.Interpreter, e.config.Args, directory)
}
