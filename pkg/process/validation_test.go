package process

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExecutionConfig(t *testing.T) {
	dir := t.TempDir()
	executable := filepath.Join(dir, "start.sh")
	require.NoError(t, os.WriteFile(executable, []byte("#!/bin/sh\n"), 0755))
	notADir := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0644))

	tests := []struct {
		name      string
		config    ExecutionConfig
		shouldErr bool
	}{
		{
			name:      "valid_minimal",
			config:    ExecutionConfig{ExecutablePath: executable},
			shouldErr: false,
		},
		{
			name: "valid_full",
			config: ExecutionConfig{
				ExecutablePath:   executable,
				Args:             []string{"--flag"},
				Environment:      []string{"PORT=8080", "EMPTY="},
				WorkingDirectory: dir,
				WaitDelay:        time.Second,
			},
			shouldErr: false,
		},
		{
			name:      "empty_path",
			config:    ExecutionConfig{},
			shouldErr: true,
		},
		{
			name:      "missing_executable",
			config:    ExecutionConfig{ExecutablePath: filepath.Join(dir, "missing")},
			shouldErr: true,
		},
		{
			name:      "working_directory_missing",
			config:    ExecutionConfig{ExecutablePath: executable, WorkingDirectory: filepath.Join(dir, "nope")},
			shouldErr: true,
		},
		{
			name:      "working_directory_is_file",
			config:    ExecutionConfig{ExecutablePath: executable, WorkingDirectory: notADir},
			shouldErr: true,
		},
		{
			name:      "bad_environment_entry",
			config:    ExecutionConfig{ExecutablePath: executable, Environment: []string{"NOEQUALS"}},
			shouldErr: true,
		},
		{
			name:      "empty_environment_key",
			config:    ExecutionConfig{ExecutablePath: executable, Environment: []string{"=value"}},
			shouldErr: true,
		},
		{
			name:      "negative_wait_delay",
			config:    ExecutionConfig{ExecutablePath: executable, WaitDelay: -time.Second},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionConfig(tt.config)

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePID(t *testing.T) {
	tests := []struct {
		name        string
		pidStr      string
		expectedPID int
		shouldErr   bool
	}{
		{"valid_pid", "1234", 1234, false},
		{"valid_pid_with_newline", "1234\n", 1234, false},
		{"empty_pid", "", 0, true},
		{"invalid_format", "abc", 0, true},
		{"zero_pid", "0", 0, true},
		{"negative_pid", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, err := ValidatePID(tt.pidStr)

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedPID, pid)
			}
		})
	}
}
