package observability

import (
	"strings"

	"github.com/smallbiznis/nexusguard/internal/config"
)

// Config is the telemetry slice of the application config, resolved once so
// the logger, tracer and meter agree on service identity.
type Config struct {
	Service     string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	Export        bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64

	development bool
}

func LoadConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "nexusguard"
	}
	return Config{
		Service:       service,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      cfg.LogLevel,
		LogFormat:     cfg.LogFormat,
		Export:        cfg.OtelEnabled,
		Endpoint:      cfg.OtelEndpoint,
		Protocol:      cfg.OtelProtocol,
		SamplingRatio: cfg.OtelSamplingRate,
		development:   cfg.Development(),
	}
}

// Debug turns on stack traces and disables log sampling.
func (c Config) Debug() bool {
	return c.development || c.LogLevel == "debug"
}
