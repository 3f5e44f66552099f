package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("Enabled()=true without DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigFromEnvRejectsIdleAboveOpen(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "2")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "3")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() err=nil, want idle/open error")
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("Open() err=nil, want missing url error")
	}
}

func TestValidateReportsEveryIssue(t *testing.T) {
	err := Config{MaxIdleConns: -1}.Validate()
	if err == nil {
		t.Fatalf("Validate() err=nil")
	}
	for _, want := range []string{"DATABASE_PING_TIMEOUT", "DATABASE_MAX_OPEN_CONNS", "DATABASE_MAX_IDLE_CONNS"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate()=%v, want mention of %s", err, want)
		}
	}
}

func TestConfigFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("DATABASE_PING_TIMEOUT", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() err=nil, want parse error")
	}
}
