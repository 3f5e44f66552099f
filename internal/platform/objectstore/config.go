package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/whlobf/internal/platform/env"
)

// Config for the optional artifact bucket. An empty endpoint disables
// publishing.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("WHLOBF_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("WHLOBF_MINIO_ENDPOINT", ""),
		AccessKey: env.String("WHLOBF_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("WHLOBF_MINIO_SECRET_KEY", ""),
		Region:    env.String("WHLOBF_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("WHLOBF_MINIO_BUCKET", "whlobf-artifacts"),
		Prefix:    env.String("WHLOBF_MINIO_PREFIX", "runs"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("prefix must be relative: %q", c.Prefix)
	}
	return nil
}
