package pstore

import "time"

// Proxy configures outbound HTTP proxying for network requests.
type Proxy struct {
	HTTP         string
	HTTPS        string
	LocalAddress string
}

// TLSConfig configures the HTTP client's transport security.
type TLSConfig struct {
	Cert   string
	Key    string
	CA     string
	Strict bool
}

// RetryConfig configures C2's download retry policy.
type RetryConfig struct {
	Count      int
	Factor     float64
	MinTimeout time.Duration
	MaxTimeout time.Duration
	Randomize  bool
}

// Config is the store's process-wide configuration, constructed once and
// passed to New.
type Config struct {
	RawRegistryConfig map[string]string
	AlwaysAuth        bool
	Registry          string
	StorePath         string

	NetworkConcurrency int
	Proxy              Proxy
	TLS                TLSConfig
	Retry              RetryConfig
	UserAgent          string
}

func (c Config) withDefaults() Config {
	if c.NetworkConcurrency <= 0 {
		c.NetworkConcurrency = 16
	}
	if c.UserAgent == "" {
		c.UserAgent = "pstore/1.0"
	}
	if c.Retry.Count <= 0 {
		c.Retry.Count = 2
	}
	if c.Retry.Factor <= 0 {
		c.Retry.Factor = 10
	}
	if c.Retry.MinTimeout <= 0 {
		c.Retry.MinTimeout = time.Second
	}
	if c.Retry.MaxTimeout <= 0 {
		c.Retry.MaxTimeout = 60 * time.Second
	}
	return c
}
