package config

import (
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

// ValidationError aggregates configuration issues. It matches
// domain.ErrConfiguration under errors.Is.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrConfiguration
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
