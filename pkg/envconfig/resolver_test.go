package envconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAllowList = NewAllowList("PORT", "FILE_PATH", "UUID", "NAME", "ARGO_AUTH")

var testDefaults = map[string]string{
	"FILE_PATH": "./world",
	"UUID":      "a217d527-bd5e-4ef0-b899-d36627af0ddd",
	"NAME":      "",
	"PORT":      "25565",
}

func envFrom(values map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func emptyEnv(string) (string, bool) {
	return "", false
}

func writeOverrideFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func resolveWith(t *testing.T, env LookupEnvFunc, content string) *EffectiveConfig {
	t.Helper()
	path := writeOverrideFile(t, content)
	config, err := NewResolver(testDefaults, testAllowList, nil).WithLookupEnv(env).Resolve(path)
	require.NoError(t, err)
	return config
}

func TestResolve_DefaultsOnly(t *testing.T) {
	config := resolveWith(t, emptyEnv, "")

	assert.Equal(t, testDefaults, config.Map())
	for key := range testDefaults {
		assert.Equal(t, SourceDefault, config.Source(key))
	}
}

func TestResolve_OverrideFileBeatsEnvironment(t *testing.T) {
	env := envFrom(map[string]string{"PORT": "8080", "NAME": "from-env"})

	config := resolveWith(t, env, "PORT=9090\n")

	assert.Equal(t, "9090", config.Value("PORT"))
	assert.Equal(t, SourceOverrideFile, config.Source("PORT"))
	assert.Equal(t, "from-env", config.Value("NAME"))
	assert.Equal(t, SourceEnvironment, config.Source("NAME"))
}

func TestResolve_EnvironmentBeatsDefaults(t *testing.T) {
	env := envFrom(map[string]string{"FILE_PATH": "  /data  "})

	config := resolveWith(t, env, "")

	assert.Equal(t, "/data", config.Value("FILE_PATH"))
}

func TestResolve_BlankEnvironmentIgnored(t *testing.T) {
	env := envFrom(map[string]string{"PORT": "   ", "NAME": ""})

	config := resolveWith(t, env, "")

	assert.Equal(t, "25565", config.Value("PORT"))
	assert.Equal(t, SourceDefault, config.Source("NAME"))
}

func TestResolve_KeysOutsideAllowListNeverAppear(t *testing.T) {
	env := envFrom(map[string]string{"HOME": "/root", "SECRET": "env", "PORT": "1"})
	defaults := map[string]string{"PORT": "2", "UNLISTED_DEFAULT": "x"}
	path := writeOverrideFile(t, "SECRET=file\nexport OTHER=1\nPORT=3\n")

	config, err := NewResolver(defaults, testAllowList, nil).WithLookupEnv(env).Resolve(path)
	require.NoError(t, err)

	for _, key := range []string{"HOME", "SECRET", "OTHER", "UNLISTED_DEFAULT"} {
		_, ok := config.Get(key)
		assert.False(t, ok, "key %s must not be present", key)
	}
	for _, key := range config.Keys() {
		assert.True(t, testAllowList.Contains(key))
	}
	assert.Equal(t, "3", config.Value("PORT"))
}

func TestResolve_MissingOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.env")

	config, err := NewResolver(testDefaults, testAllowList, nil).WithLookupEnv(emptyEnv).Resolve(path)

	require.NoError(t, err)
	assert.Equal(t, testDefaults, config.Map())
}

func TestResolve_EmptyPathSkipsFile(t *testing.T) {
	config, err := NewResolver(testDefaults, testAllowList, nil).WithLookupEnv(emptyEnv).Resolve("")

	require.NoError(t, err)
	assert.Equal(t, len(testDefaults), config.Len())
}

func TestResolve_UnreadableOverrideFile(t *testing.T) {
	// A directory exists but cannot be read as a file
	dir := t.TempDir()

	config, err := NewResolver(testDefaults, testAllowList, nil).WithLookupEnv(emptyEnv).Resolve(dir)

	require.Error(t, err)
	assert.Nil(t, config)
	assert.True(t, errors.IsConfigReadError(err))
}

func TestResolve_DuplicateKeysLastWins(t *testing.T) {
	config := resolveWith(t, emptyEnv, "NAME=first\nNAME=second\n")

	assert.Equal(t, "second", config.Value("NAME"))
}

func TestResolve_Idempotent(t *testing.T) {
	content := "# comment\nexport NAME='node-1'\nPORT=9090 // trailing\nUUID=\"abc\"\n"
	path := writeOverrideFile(t, content)
	resolver := NewResolver(testDefaults, testAllowList, nil).WithLookupEnv(emptyEnv)

	first, err := resolver.Resolve(path)
	require.NoError(t, err)
	second, err := resolver.Resolve(path)
	require.NoError(t, err)

	assert.Equal(t, first.Map(), second.Map())
	assert.Equal(t, first.Environ(), second.Environ())
}

func TestEffectiveConfig_EnvironOrder(t *testing.T) {
	config := resolveWith(t, emptyEnv, "ARGO_AUTH=token\n")

	assert.Equal(t, []string{
		"PORT=25565",
		"FILE_PATH=./world",
		"UUID=a217d527-bd5e-4ef0-b899-d36627af0ddd",
		"NAME=",
		"ARGO_AUTH=token",
	}, config.Environ())
}

func TestEffectiveConfig_MapIsCopy(t *testing.T) {
	config := resolveWith(t, emptyEnv, "")

	copied := config.Map()
	copied["PORT"] = "1"

	assert.Equal(t, "25565", config.Value("PORT"))
}

func TestEffectiveConfig_Nil(t *testing.T) {
	var config *EffectiveConfig

	assert.Equal(t, 0, config.Len())
	assert.Empty(t, config.Keys())
	assert.Empty(t, config.Environ())
	assert.Equal(t, "", config.Value("PORT"))
}

func TestResolve_PackageLevel(t *testing.T) {
	t.Setenv("NAME", "from-os")
	path := writeOverrideFile(t, "UUID=file-uuid\n")

	config, err := Resolve(testDefaults, testAllowList, path)

	require.NoError(t, err)
	assert.Equal(t, "from-os", config.Value("NAME"))
	assert.Equal(t, "file-uuid", config.Value("UUID"))
}

func TestNewAllowList(t *testing.T) {
	list := NewAllowList("PORT", " NAME ", "", "PORT")

	assert.Equal(t, []string{"PORT", "NAME"}, list.Names())
	assert.True(t, list.Contains("NAME"))
	assert.False(t, list.Contains("name"))
	assert.False(t, list.Contains(""))
}

func TestReadOverrideFile_LineNumbers(t *testing.T) {
	path := writeOverrideFile(t, strings.Join([]string{"# header", "", "PORT=1", "bogus", "NAME=x"}, "\n"))

	assignments, found, err := ReadOverrideFile(path)

	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, assignments, 2)
	assert.Equal(t, Assignment{Key: "PORT", Value: "1", Line: 3}, assignments[0])
	assert.Equal(t, Assignment{Key: "NAME", Value: "x", Line: 5}, assignments[1])
}
