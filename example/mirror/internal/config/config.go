package config

const (
	// Upstream configuration
	DefaultManifestURL = "http://localhost:8080/manifest.json"
	DefaultEventsURL   = "http://localhost:8080/events"
	DefaultMirrorDir   = "./mirror-data"
	DefaultProxy       = ""

	// Breaker state is shared through Redis when set
	RedisAddr = "localhost:6379"

	// Client limits
	RequestsPerSecond = 20
	RequestBurst      = 5
	MaxRedirects      = 5

	// Server configuration
	MetricsPort = ":2112"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "courier-mirror-example"
	ServiceVersion = "0.1.0"

	// Operation intervals
	SyncInterval = 30 // seconds
)
