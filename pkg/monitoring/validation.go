package monitoring

import (
	"net/url"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
)

// ValidateHealthCheckConfig validates health check configuration
func ValidateHealthCheckConfig(config HealthCheckConfig) error {
	if config.Interval < 0 {
		return errors.NewValidationError("health check interval cannot be negative", nil)
	}
	if config.Timeout < 0 {
		return errors.NewValidationError("health check timeout cannot be negative", nil)
	}
	if config.Interval > 0 && config.Timeout >= config.Interval {
		return errors.NewValidationError("health check timeout must be less than interval", nil)
	}

	switch config.Type {
	case "", HealthCheckTypeProcess:
		// nothing else to check

	case HealthCheckTypeTCP:
		if config.Address == "" {
			return errors.NewValidationError("address is required for TCP health check", nil)
		}

	case HealthCheckTypeHTTP:
		u, err := url.Parse(config.Address)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.NewValidationError("HTTP health check needs an http(s) URL", err).
				WithContext("address", config.Address)
		}

	default:
		return errors.NewValidationError("unsupported health check type: "+string(config.Type), nil)
	}

	return nil
}
