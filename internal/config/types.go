package config

// Config is the top-level configuration structure for pkghub. One file
// configures both roles; a process reads the section for the role it runs.
type Config struct {
	Bridge   BridgeConfig             `yaml:"bridge"`
	Adapters map[string]AdapterConfig `yaml:"adapters"`
}

// BridgeConfig configures the aggregation bridge.
type BridgeConfig struct {
	// Listen is the bind address, default ":8080".
	Listen string `yaml:"listen,omitempty"`

	// APIKey, when set, is required from clients on every request.
	APIKey string `yaml:"apiKey,omitempty"`

	// HealthTimeoutSeconds bounds each /health probe (default 3).
	HealthTimeoutSeconds int `yaml:"healthTimeoutSeconds,omitempty"`

	// Upstreams are the adapter descriptors, handshaken in order.
	Upstreams []UpstreamConfig `yaml:"upstreams"`
}

// UpstreamConfig describes one adapter behind the bridge.
type UpstreamConfig struct {
	URL string `yaml:"url"`

	// APIKey is presented to the adapter as a Bearer token.
	APIKey string `yaml:"apiKey,omitempty"`

	// TimeoutSeconds bounds the startup handshake (default 30).
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`

	// HealthPath is probed by /health (default "/").
	HealthPath string `yaml:"healthPath,omitempty"`
}

// AdapterConfig configures one ecosystem adapter process, keyed by ecosystem
// name ("npm", "pypi", "maven", "nuget", "oci", "mcp") in the Adapters map.
type AdapterConfig struct {
	// Listen is the bind address, default ":8081".
	Listen string `yaml:"listen,omitempty"`

	// APIKey, when set, is required on incoming requests (the bridge
	// presents it as a Bearer token).
	APIKey string `yaml:"apiKey,omitempty"`

	// RegistryURL overrides the ecosystem's default upstream endpoint.
	RegistryURL string `yaml:"registryUrl,omitempty"`

	// CatalogURL overrides the bulk catalog endpoint where the ecosystem
	// has a separate one (npm _all_docs, maven/nuget search).
	CatalogURL string `yaml:"catalogUrl,omitempty"`

	// HostID overrides the OCI group id; ProviderID the MCP one.
	HostID     string `yaml:"hostId,omitempty"`
	ProviderID string `yaml:"providerId,omitempty"`

	// CatalogDisabled marks an OCI registry that refuses _catalog.
	CatalogDisabled bool `yaml:"catalogDisabled,omitempty"`

	// CatalogRows caps one index refresh for search-backed catalogs.
	CatalogRows int `yaml:"catalogRows,omitempty"`

	// RefreshHours is the index refresh cadence (default 24).
	RefreshHours int `yaml:"refreshHours,omitempty"`

	Cache CacheConfig `yaml:"cache,omitempty"`
	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// Limits tunes the collection engine.
	Limits LimitsConfig `yaml:"limits,omitempty"`
}

// CacheConfig tunes the adapter's metadata cache.
type CacheConfig struct {
	Size               int `yaml:"size,omitempty"`
	PositiveTTLSeconds int `yaml:"positiveTtlSeconds,omitempty"`
	NegativeTTLSeconds int `yaml:"negativeTtlSeconds,omitempty"`
	GraceTTLSeconds    int `yaml:"graceTtlSeconds,omitempty"`
}

// FetchConfig tunes the adapter's upstream fetcher.
type FetchConfig struct {
	PerHostConcurrency int   `yaml:"perHostConcurrency,omitempty"`
	QueueDepth         int   `yaml:"queueDepth,omitempty"`
	TimeoutSeconds     int   `yaml:"timeoutSeconds,omitempty"`
	MaxAttempts        int   `yaml:"maxAttempts,omitempty"`
	MaxBodyBytes       int64 `yaml:"maxBodyBytes,omitempty"`
}

// LimitsConfig tunes the collection engine per adapter.
type LimitsConfig struct {
	DefaultLimit   int `yaml:"defaultLimit,omitempty"`
	MaxLimit       int `yaml:"maxLimit,omitempty"`
	CandidateLimit int `yaml:"candidateLimit,omitempty"`
}
