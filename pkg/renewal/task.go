package renewal

import (
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
)

const (
	DefaultSuccessInterval = 50 * time.Minute
	DefaultFailureInterval = 5 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMethod          = http.MethodPost
)

// Task describes the renewal request and its pacing
type Task struct {
	Endpoint        string            `yaml:"endpoint"`
	Method          string            `yaml:"method,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	SuccessInterval time.Duration     `yaml:"success_interval,omitempty"`
	FailureInterval time.Duration     `yaml:"failure_interval,omitempty"`
	RequestTimeout  time.Duration     `yaml:"request_timeout,omitempty"`
}

// WithDefaults fills unset fields
func (t Task) WithDefaults() Task {
	if t.Method == "" {
		t.Method = DefaultMethod
	}
	if t.SuccessInterval <= 0 {
		t.SuccessInterval = DefaultSuccessInterval
	}
	if t.FailureInterval <= 0 {
		t.FailureInterval = DefaultFailureInterval
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = DefaultRequestTimeout
	}
	return t
}

func ValidateTask(t Task) error {
	if t.Endpoint == "" {
		return errors.NewValidationError("renewal endpoint is required", nil)
	}
	if !strings.HasPrefix(t.Endpoint, "http://") && !strings.HasPrefix(t.Endpoint, "https://") {
		return errors.NewValidationError("renewal endpoint must be an http(s) URL", nil).WithContext("endpoint", t.Endpoint)
	}
	if t.SuccessInterval < 0 || t.FailureInterval < 0 || t.RequestTimeout < 0 {
		return errors.NewValidationError("renewal intervals cannot be negative", nil)
	}
	return nil
}

// NewSubscriptionTask builds the panel subscription renewal request for
// serverID. The session cookie is sent as-is.
func NewSubscriptionTask(baseURL string, serverID string, cookie string) Task {
	baseURL = strings.TrimRight(baseURL, "/")
	return Task{
		Endpoint: baseURL + "/api/servers/" + serverID + "/subscription",
		Method:   http.MethodPost,
		Headers: map[string]string{
			"Cookie":           cookie,
			"Accept":           "*/*",
			"Accept-Language":  "zh-CN,zh;q=0.9",
			"Origin":           baseURL,
			"Referer":          baseURL + "/servers/" + serverID + "/dashboard",
			"X-Requested-With": "XMLHttpRequest",
			"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		},
	}.WithDefaults()
}
