package config

// GetDefaultConfig returns the default configuration: a bridge on :8080 with
// no upstreams and no adapters. Listen addresses and cadences default here;
// component-level tunables (cache TTLs, fetcher limits) default inside their
// packages so a zero value always means "the default".
func GetDefaultConfig() Config {
	return Config{
		Bridge: BridgeConfig{
			Listen:               ":8080",
			HealthTimeoutSeconds: 3,
		},
		Adapters: map[string]AdapterConfig{},
	}
}

// Normalized fills the per-adapter defaults that depend on nothing else.
func (a AdapterConfig) Normalized() AdapterConfig {
	if a.Listen == "" {
		a.Listen = ":8081"
	}
	if a.RefreshHours <= 0 {
		a.RefreshHours = 24
	}
	return a
}
