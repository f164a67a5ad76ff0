package provision

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

// Artifact is what the supervisor runs: Path with Args, in WorkingDir
// (empty means the current directory)
type Artifact struct {
	Path       string
	Args       []string
	WorkingDir string
}

// ArtifactProvisioner produces a runnable artifact from the resolved configuration
type ArtifactProvisioner interface {
	Name() string
	Provision(ctx context.Context, cfg *envconfig.EffectiveConfig) (*Artifact, error)
}

type ProvisionerType string

const (
	ProvisionerTypeNone     ProvisionerType = ""
	ProvisionerTypeDownload ProvisionerType = "download"
	ProvisionerTypeExtract  ProvisionerType = "extract"
	ProvisionerTypeDiscover ProvisionerType = "discover"
	ProvisionerTypeInline   ProvisionerType = "inline"
)

type Config struct {
	Type     ProvisionerType `yaml:"type"`
	Download DownloadConfig  `yaml:"download,omitempty"`
	Extract  ExtractConfig   `yaml:"extract,omitempty"`
	Discover DiscoverConfig  `yaml:"discover,omitempty"`
	Inline   InlineConfig    `yaml:"inline,omitempty"`
}

// New builds the provisioner selected by config.Type. Output receives the
// output of synchronous setup steps. ProvisionerTypeNone yields nil, nil.
func New(config Config, output io.Writer, logger logging.Logger) (ArtifactProvisioner, error) {
	if output == nil {
		output = os.Stdout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	switch config.Type {
	case ProvisionerTypeNone:
		return nil, nil
	case ProvisionerTypeDownload:
		return NewDownloadBinary(config.Download, logger), nil
	case ProvisionerTypeExtract:
		return NewExtractArchive(config.Extract, output, logger), nil
	case ProvisionerTypeDiscover:
		return NewDiscoverScript(config.Discover, logger), nil
	case ProvisionerTypeInline:
		return NewInlineScript(config.Inline, logger), nil
	default:
		return nil, errors.NewValidationError("unsupported provisioner type: "+string(config.Type), nil)
	}
}

// ValidateConfig checks the section selected by config.Type
func ValidateConfig(config Config) error {
	switch config.Type {
	case ProvisionerTypeNone:
		return nil
	case ProvisionerTypeDownload:
		if len(config.Download.URLs) == 0 {
			return errors.NewValidationError("download provisioner needs at least one URL", nil)
		}
		for arch := range config.Download.URLs {
			if _, ok := NormalizeArch(arch); !ok {
				return errors.NewValidationError("unsupported architecture in download URLs: "+arch, nil)
			}
		}
	case ProvisionerTypeExtract:
		if config.Extract.Archive == "" || config.Extract.Directory == "" || config.Extract.Entry == "" {
			return errors.NewValidationError("extract provisioner needs archive, directory and entry", nil)
		}
	case ProvisionerTypeDiscover:
		if len(config.Discover.Candidates) == 0 {
			return errors.NewValidationError("discover provisioner needs at least one candidate", nil)
		}
	case ProvisionerTypeInline:
		if config.Inline.Path == "" {
			return errors.NewValidationError("inline provisioner needs a path", nil)
		}
	default:
		return errors.NewValidationError("unsupported provisioner type: "+string(config.Type), nil)
	}
	return nil
}

// scriptArtifact runs script directly, or through interpreter when one is set.
// The script path is made absolute so a relative workingDir is not applied twice.
func scriptArtifact(script string, interpreter []string, args []string, workingDir string) (*Artifact, error) {
	script, err := absolutePath(script)
	if err != nil {
		return nil, err
	}

	if len(interpreter) == 0 {
		return &Artifact{
			Path:       script,
			Args:       append([]string(nil), args...),
			WorkingDir: workingDir,
		}, nil
	}

	fullArgs := make([]string, 0, len(interpreter)+len(args))
	fullArgs = append(fullArgs, interpreter[1:]...)
	fullArgs = append(fullArgs, script)
	fullArgs = append(fullArgs, args...)
	return &Artifact{
		Path:       interpreter[0],
		Args:       fullArgs,
		WorkingDir: workingDir,
	}, nil
}

func absolutePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewProvisioningError("failed to resolve artifact path", err).WithContext("path", path)
	}
	return abs, nil
}
