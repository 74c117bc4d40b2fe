package config

const (
	// Backend configuration
	BackendAddr = "localhost:8099"

	// Simulated latency profile: most responses are fast, a slice of the
	// traffic hits the slow tail the hedging client is meant to cut off.
	FastLatencyMillis = 20
	SlowLatencyMillis = 800
	SlowSharePercent  = 10

	// Hedging configuration
	TargetSLOMillis = 200
	HedgeAtFraction = 0.75

	// Server configuration
	MetricsPort = ":2112"

	// OpenTelemetry configuration
	OTLPEndpoint   = "localhost:4317"
	ServiceName    = "hedging-example"
	ServiceVersion = "0.1.0"

	// Operation intervals
	RequestInterval = 250 // milliseconds
)
