package reportexport

import (
	"fmt"
	"strings"

	"github.com/animus-labs/whlobf/internal/platform/env"
)

// Config controls report export format and destination. An empty
// destination disables export; "-" means stdout, anything else is a file
// path that reports are appended to.
type Config struct {
	Format      string
	Destination string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Format:      env.String("WHLOBF_REPORT_FORMAT", "ndjson"),
		Destination: env.String("WHLOBF_REPORT_DESTINATION", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Destination) != ""
}

func (c Config) Validate() error {
	format := strings.ToLower(strings.TrimSpace(c.Format))
	if format == "" {
		format = "ndjson"
	}
	if format != "ndjson" {
		return fmt.Errorf("unsupported report export format: %s", format)
	}
	return nil
}
