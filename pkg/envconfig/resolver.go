package envconfig

import (
	"os"
	"strings"

	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

// DefaultOverrideFile is the conventional override file name, relative to the working directory
const DefaultOverrideFile = ".env"

// LookupEnvFunc has the shape of os.LookupEnv
type LookupEnvFunc func(key string) (string, bool)

// Resolver merges defaults, allow-listed environment variables and an override
// file into an EffectiveConfig. Later layers win.
type Resolver struct {
	defaults  map[string]string
	allowList AllowList
	lookupEnv LookupEnvFunc
	logger    logging.Logger
}

func NewResolver(defaults map[string]string, allowList AllowList, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{
		defaults:  defaults,
		allowList: allowList,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
}

// WithLookupEnv replaces the OS environment lookup
func (r *Resolver) WithLookupEnv(lookupEnv LookupEnvFunc) *Resolver {
	if lookupEnv != nil {
		r.lookupEnv = lookupEnv
	}
	return r
}

// Resolve builds the effective configuration. An empty overrideFilePath skips
// the file layer; a missing file is not an error.
func (r *Resolver) Resolve(overrideFilePath string) (*EffectiveConfig, error) {
	config := newEffectiveConfig(r.allowList)

	// 1. defaults
	for _, name := range r.allowList.Names() {
		if value, ok := r.defaults[name]; ok {
			config.set(name, value, SourceDefault)
		}
	}
	for name := range r.defaults {
		if !r.allowList.Contains(name) {
			r.logger.Debugf("Ignoring default outside allow-list, key: %s", name)
		}
	}

	// 2. OS environment, non-blank only
	fromEnv := 0
	for _, name := range r.allowList.Names() {
		value, ok := r.lookupEnv(name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		config.set(name, value, SourceEnvironment)
		fromEnv++
	}

	// 3. override file
	fromFile := 0
	if overrideFilePath != "" {
		assignments, found, err := ReadOverrideFile(overrideFilePath)
		if err != nil {
			r.logger.Errorf("Failed to read override file, path: %s, error: %v", overrideFilePath, err)
			return nil, err
		}
		if !found {
			r.logger.Debugf("No override file, path: %s", overrideFilePath)
		}
		for _, assignment := range assignments {
			if !r.allowList.Contains(assignment.Key) {
				continue
			}
			config.set(assignment.Key, assignment.Value, SourceOverrideFile)
			fromFile++
		}
	}

	r.logger.Infof("Resolved %d variables, environment overrides: %d, override file assignments: %d",
		config.Len(), fromEnv, fromFile)

	return config, nil
}

// Resolve resolves with the real OS environment and no logging
func Resolve(defaults map[string]string, allowList AllowList, overrideFilePath string) (*EffectiveConfig, error) {
	return NewResolver(defaults, allowList, nil).Resolve(overrideFilePath)
}
