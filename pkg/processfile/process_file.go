package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/process"
	"github.com/core-tools/hsu-bootstrap/pkg/processstate"
)

const DefaultAppName = "hsu-bootstrap"

// ProcessFileConfig controls where PID files for supervised processes live
type ProcessFileConfig struct {
	// Base directory for PID files. If empty, uses an OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	AppName string

	// Create a subdirectory named after AppName
	UseSubdirectory bool
}

// ServiceContext selects the default base directory
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

// ProcessFileManager writes, reads and removes PID files keyed by process id
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// GeneratePIDFilePath returns the PID file path for id
func (m *ProcessFileManager) GeneratePIDFilePath(id string) string {
	baseDir := m.getBaseDirectory()
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return filepath.Join(baseDir, id+".pid")
}

// WritePIDFile records pid for id, creating the directory if needed
func (m *ProcessFileManager) WritePIDFile(id string, pid int) error {
	pidFilePath := m.GeneratePIDFilePath(id)
	m.logger.Debugf("Writing PID file, id: %s, pid: %d, path: %s", id, pid, pidFilePath)

	if err := ValidatePIDFileDirectory(pidFilePath); err != nil {
		m.logger.Errorf("PID file directory validation failed, id: %s, path: %s, error: %v", id, pidFilePath, err)
		return errors.NewIOError("PID file directory validation failed", err).WithContext("pid_file", pidFilePath)
	}

	if err := os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		m.logger.Errorf("Failed to write PID file, id: %s, pid: %d, path: %s, error: %v", id, pid, pidFilePath, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", pidFilePath).WithContext("pid", pid)
	}

	m.logger.Infof("PID file written, id: %s, pid: %d, path: %s", id, pid, pidFilePath)
	return nil
}

// ReadPIDFile returns the PID recorded for id
func (m *ProcessFileManager) ReadPIDFile(id string) (int, error) {
	pidFilePath := m.GeneratePIDFilePath(id)

	content, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", pidFilePath)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFilePath)
	}

	pid, err := process.ValidatePID(string(content))
	if err != nil {
		return 0, errors.NewValidationError("invalid PID file content", err).WithContext("pid_file", pidFilePath)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file for id. A missing file is not an error.
func (m *ProcessFileManager) RemovePIDFile(id string) error {
	pidFilePath := m.GeneratePIDFilePath(id)
	if err := os.Remove(pidFilePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warnf("Failed to remove PID file, id: %s, path: %s, error: %v", id, pidFilePath, err)
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", pidFilePath)
	}
	m.logger.Debugf("PID file removed, id: %s, path: %s", id, pidFilePath)
	return nil
}

// CheckStale looks for a PID file left by an earlier run. It returns the
// recorded PID and whether that process is still running. No file means (0, false).
func (m *ProcessFileManager) CheckStale(id string) (int, bool) {
	pid, err := m.ReadPIDFile(id)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			m.logger.Warnf("Ignoring unreadable PID file, id: %s, error: %v", id, err)
		}
		return 0, false
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		m.logger.Warnf("Failed to check recorded process, id: %s, pid: %d, error: %v", id, pid, err)
		return pid, false
	}
	if running {
		m.logger.Warnf("Process from an earlier run may still be alive, id: %s, pid: %d", id, pid)
	}
	return pid, running
}

func (m *ProcessFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case SystemService:
		return systemServiceDirectory()
	case SessionService:
		return sessionServiceDirectory()
	default:
		return userServiceDirectory()
	}
}

func systemServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			return programData
		}
		return "C:\\ProgramData"
	case "darwin":
		return "/var/run"
	default:
		if _, err := os.Stat("/run"); err == nil {
			return "/run"
		}
		return "/var/run"
	}
}

func userServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData
		}
		return os.TempDir()
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")
	default:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return os.TempDir()
	}
}

func sessionServiceDirectory() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return os.TempDir()
	}
	sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if _, err := os.Stat(sessionDir); err == nil {
		return sessionDir
	}
	return os.TempDir()
}

// ValidatePIDFileDirectory makes sure the directory of pidFilePath exists and is writable
func ValidatePIDFileDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}

	testFile, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return errors.NewPermissionError("PID file directory is not writable", err).WithContext("directory", dir)
	}
	testFile.Close()
	os.Remove(testFile.Name())

	return nil
}
