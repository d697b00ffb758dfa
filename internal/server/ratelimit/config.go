package ratelimit

import (
	"math"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// NewConfig builds a configuration allowing perSecond requests with burst on ordinary
// endpoints. A zero perSecond disables limiting.
func NewConfig(perSecond float64, burst int) *Config {
	if perSecond <= 0 {
		return &Config{Enabled: false}
	}
	limit := int(math.Ceil(perSecond * 60))
	if burst <= 0 {
		burst = limit
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    limit,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		EndpointConfigs: append(DefaultEndpointConfigs(), EndpointConfig{
			Path: "/", Method: "GET", Limit: limit, Window: time.Minute, Burst: burst,
		}),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// manual triggers hit external services
		{Path: "/ticks", Method: "POST", Limit: 30, Window: time.Hour, Burst: 3},
		{Path: "/batches", Method: "POST", Limit: 30, Window: time.Hour, Burst: 3},
		{Path: "/batches/stream", Method: "POST", Limit: 30, Window: time.Hour, Burst: 3},

		// login attempts
		{Path: "/auth/token", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},

		// writes
		{Path: "/schedules", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/schedules/", Method: "DELETE", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/posts/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/posts/", Method: "DELETE", Limit: 60, Window: time.Minute, Burst: 10},
	}
}
