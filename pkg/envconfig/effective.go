package envconfig

// Source names the precedence layer a value came from
type Source string

const (
	SourceDefault      Source = "default"
	SourceEnvironment  Source = "environment"
	SourceOverrideFile Source = "override_file"
)

// EffectiveConfig is the resolved variable map handed to the supervised process.
// Keys are always allow-listed and iterate in allow-list order. It has no exported
// mutators, so it is immutable once Resolve returns it.
type EffectiveConfig struct {
	order   []string
	values  map[string]string
	sources map[string]Source
}

func newEffectiveConfig(allowList AllowList) *EffectiveConfig {
	return &EffectiveConfig{
		order:   allowList.Names(),
		values:  make(map[string]string, allowList.Len()),
		sources: make(map[string]Source, allowList.Len()),
	}
}

func (c *EffectiveConfig) set(key, value string, source Source) {
	c.values[key] = value
	c.sources[key] = source
}

// Source reports which layer supplied key, or "" when absent
func (c *EffectiveConfig) Source(key string) Source {
	if c == nil {
		return ""
	}
	return c.sources[key]
}

// Get returns the value for key and whether it is present
func (c *EffectiveConfig) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	value, ok := c.values[key]
	return value, ok
}

// Value returns the value for key, or "" when absent
func (c *EffectiveConfig) Value(key string) string {
	value, _ := c.Get(key)
	return value
}

// Keys returns the present keys in allow-list order
func (c *EffectiveConfig) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for _, key := range c.order {
		if _, ok := c.values[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *EffectiveConfig) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Map returns a copy of the resolved values
func (c *EffectiveConfig) Map() map[string]string {
	out := make(map[string]string, c.Len())
	if c == nil {
		return out
	}
	for key, value := range c.values {
		out[key] = value
	}
	return out
}

// Environ renders the config as KEY=VALUE entries, suitable for overlaying
// onto an inherited process environment
func (c *EffectiveConfig) Environ() []string {
	keys := c.Keys()
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+c.values[key])
	}
	return env
}
