package bootstrap

import (
	"sort"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"

	"github.com/google/uuid"
)

const (
	VariantSbx    = "sbx"
	VariantNezha  = "nezha"
	VariantTunnel = "tunnel"
	VariantCustom = "custom"
)

// Variant is one recognized set of variable names plus their defaults
type Variant struct {
	Name      string
	AllowList envconfig.AllowList
	Defaults  map[string]string
}

var sbxNames = []string{
	"PORT", "FILE_PATH", "UUID", "NEZHA_SERVER", "NEZHA_PORT",
	"NEZHA_KEY", "ARGO_PORT", "ARGO_DOMAIN", "ARGO_AUTH",
	"HY2_PORT", "TUIC_PORT", "REALITY_PORT", "CFIP", "CFPORT",
	"UPLOAD_URL", "CHAT_ID", "BOT_TOKEN", "NAME",
}

// Placeholders only; credentials come from the environment or the override file
var sbxDefaults = map[string]string{
	"UUID":         "a217d527-bd5e-4ef0-b899-d36627af0ddd",
	"FILE_PATH":    "./world",
	"NEZHA_SERVER": "",
	"NEZHA_PORT":   "",
	"NEZHA_KEY":    "",
	"ARGO_PORT":    "8001",
	"ARGO_DOMAIN":  "",
	"ARGO_AUTH":    "",
	"HY2_PORT":     "",
	"TUIC_PORT":    "",
	"REALITY_PORT": "",
	"UPLOAD_URL":   "",
	"CHAT_ID":      "",
	"BOT_TOKEN":    "",
	"CFIP":         "",
	"CFPORT":       "",
	"NAME":         "node",
}

var builtinVariants = map[string]func() Variant{
	VariantSbx: func() Variant {
		return Variant{
			Name:      VariantSbx,
			AllowList: envconfig.NewAllowList(sbxNames...),
			Defaults:  copyDefaults(sbxDefaults, sbxNames),
		}
	},
	VariantNezha: func() Variant {
		names := []string{"NEZHA_SERVER", "NEZHA_PORT", "NEZHA_KEY", "UUID", "NAME"}
		return Variant{
			Name:      VariantNezha,
			AllowList: envconfig.NewAllowList(names...),
			Defaults:  copyDefaults(sbxDefaults, names),
		}
	},
	VariantTunnel: func() Variant {
		names := []string{"ARGO_PORT", "ARGO_DOMAIN", "ARGO_AUTH", "CFIP", "CFPORT", "NAME"}
		return Variant{
			Name:      VariantTunnel,
			AllowList: envconfig.NewAllowList(names...),
			Defaults:  copyDefaults(sbxDefaults, names),
		}
	},
}

// VariantNames lists the built-in variants plus "custom"
func VariantNames() []string {
	names := make([]string, 0, len(builtinVariants)+1)
	for name := range builtinVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, VariantCustom)
}

// LookupVariant returns the named built-in variant, or the custom one built
// from custom. Custom defaults must be allow-listed.
func LookupVariant(name string, custom VariantConfig) (Variant, error) {
	if name == VariantCustom {
		if len(custom.AllowList) == 0 {
			return Variant{}, errors.NewValidationError("custom variant needs an allow list", nil)
		}
		allowList := envconfig.NewAllowList(custom.AllowList...)
		for key := range custom.Defaults {
			if !allowList.Contains(key) {
				return Variant{}, errors.NewValidationError("custom default is not allow-listed: "+key, nil)
			}
		}
		return Variant{
			Name:      VariantCustom,
			AllowList: allowList,
			Defaults:  copyDefaults(custom.Defaults, allowList.Names()),
		}, nil
	}

	build, ok := builtinVariants[name]
	if !ok {
		return Variant{}, errors.NewValidationError("unknown variant: "+name, nil).
			WithContext("valid_variants", strings.Join(VariantNames(), ", "))
	}
	return build(), nil
}

func copyDefaults(source map[string]string, names []string) map[string]string {
	defaults := make(map[string]string)
	for _, name := range names {
		if value, ok := source[name]; ok {
			defaults[name] = value
		}
	}
	return defaults
}

// CheckValues warns about resolved values the auxiliary process is likely
// to reject. It never fails the boot sequence.
func CheckValues(cfg *envconfig.EffectiveConfig, logger logging.Logger) int {
	warnings := 0
	for _, key := range cfg.Keys() {
		value := cfg.Value(key)
		if value == "" {
			continue
		}
		switch {
		case key == "UUID":
			if _, err := uuid.Parse(value); err != nil {
				logger.Warnf("UUID does not look valid, value: %s, error: %v", value, err)
				warnings++
			}
		case key == "PORT" || strings.HasSuffix(key, "_PORT") || key == "CFPORT":
			port, err := strconv.Atoi(value)
			if err != nil || port < 1 || port > 65535 {
				logger.Warnf("Port out of range, name: %s, value: %s", key, value)
				warnings++
			}
		}
	}
	return warnings
}
