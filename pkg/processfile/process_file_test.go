package processfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ProcessFileMockLogger discards everything
type ProcessFileMockLogger struct{}

func (m *ProcessFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Errorf(format string, args ...interface{})               {}

func newTestManager(t *testing.T, subdirectory bool) *ProcessFileManager {
	t.Helper()
	return NewProcessFileManager(ProcessFileConfig{
		BaseDirectory:   t.TempDir(),
		AppName:         "test-app",
		UseSubdirectory: subdirectory,
	}, &ProcessFileMockLogger{})
}

func TestNewProcessFileManager_WithDefaults(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{}, nil)

	assert.NotNil(t, manager)
	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.Equal(t, UserService, manager.config.ServiceContext)
}

func TestGeneratePIDFilePath(t *testing.T) {
	customPath := "/custom/path"
	if runtime.GOOS == "windows" {
		customPath = "C:\\custom\\path"
	}

	tests := []struct {
		name         string
		config       ProcessFileConfig
		contains     []string
		notContains  string
		checkBaseDir bool
	}{
		{
			name:     "system_service_with_subdirectory",
			config:   ProcessFileConfig{ServiceContext: SystemService, AppName: "test-app", UseSubdirectory: true},
			contains: []string{"test-app", "sbx.pid"},
		},
		{
			name:     "user_service_with_subdirectory",
			config:   ProcessFileConfig{ServiceContext: UserService, AppName: "test-app", UseSubdirectory: true},
			contains: []string{"test-app", "sbx.pid"},
		},
		{
			name:     "session_service",
			config:   ProcessFileConfig{ServiceContext: SessionService, AppName: "test-app"},
			contains: []string{"sbx.pid"},
		},
		{
			name:     "custom_base_directory",
			config:   ProcessFileConfig{BaseDirectory: customPath, AppName: "test-app", UseSubdirectory: true},
			contains: []string{customPath, "test-app", "sbx.pid"},
		},
		{
			name:        "without_subdirectory",
			config:      ProcessFileConfig{BaseDirectory: customPath, AppName: "test-app"},
			contains:    []string{customPath, "sbx.pid"},
			notContains: "test-app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewProcessFileManager(tt.config, &ProcessFileMockLogger{})

			path := manager.GeneratePIDFilePath("sbx")

			for _, part := range tt.contains {
				assert.Contains(t, path, part)
			}
			if tt.notContains != "" {
				assert.NotContains(t, path, tt.notContains)
			}
		})
	}
}

func TestValidatePIDFileDirectory_CreateDirectory(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "non-existent")

	err := ValidatePIDFileDirectory(filepath.Join(testDir, "sbx.pid"))

	assert.NoError(t, err)
	assert.DirExists(t, testDir)
}

func TestValidatePIDFileDirectory_ParentIsFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	err := ValidatePIDFileDirectory(filepath.Join(parent, "sbx.pid"))

	assert.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestProcessFileManager_WriteReadRemove(t *testing.T) {
	for _, subdirectory := range []bool{false, true} {
		manager := newTestManager(t, subdirectory)

		require.NoError(t, manager.WritePIDFile("sbx", 12345))

		pidFilePath := manager.GeneratePIDFilePath("sbx")
		content, err := os.ReadFile(pidFilePath)
		require.NoError(t, err)
		assert.Equal(t, "12345\n", string(content))

		pid, err := manager.ReadPIDFile("sbx")
		require.NoError(t, err)
		assert.Equal(t, 12345, pid)

		require.NoError(t, manager.RemovePIDFile("sbx"))
		assert.NoFileExists(t, pidFilePath)
		assert.NoError(t, manager.RemovePIDFile("sbx"))
	}
}

func TestProcessFileManager_ReadPIDFile_Errors(t *testing.T) {
	manager := newTestManager(t, false)

	_, err := manager.ReadPIDFile("missing")
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, os.WriteFile(manager.GeneratePIDFilePath("garbage"), []byte("not-a-pid"), 0644))
	_, err = manager.ReadPIDFile("garbage")
	assert.True(t, errors.IsValidationError(err))
}

func TestProcessFileManager_CheckStale(t *testing.T) {
	manager := newTestManager(t, false)

	pid, running := manager.CheckStale("sbx")
	assert.Equal(t, 0, pid)
	assert.False(t, running)

	require.NoError(t, manager.WritePIDFile("sbx", os.Getpid()))
	pid, running = manager.CheckStale("sbx")
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, running)
}
