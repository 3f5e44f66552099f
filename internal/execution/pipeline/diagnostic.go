package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func classify(err error) domain.StageFailure {
	var p *panicError
	switch {
	case errors.As(err, &p):
		return domain.StageFailurePanic
	case errors.Is(err, domain.ErrCompileTimeout):
		return domain.StageFailureTimeout
	default:
		return domain.StageFailureError
	}
}

// writeDiagnostic appends the error and its full cause chain to w.
func writeDiagnostic(w io.Writer, stage string, err error) {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "stage %s failed: %v\n", stage, err)
	if chain := causeChain(err, 1); len(chain) > 0 {
		b.WriteString("caused by:\n")
		for _, line := range chain {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	var p *panicError
	if errors.As(err, &p) && len(p.stack) > 0 {
		b.WriteString("\n")
		b.Write(p.stack)
	}
	_, _ = io.WriteString(w, b.String())
}

func causeChain(err error, depth int) []string {
	var next []error
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		next = u.Unwrap()
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			next = []error{inner}
		}
	}
	out := make([]string, 0, len(next))
	for _, cause := range next {
		if cause == nil {
			continue
		}
		out = append(out, strings.Repeat("  ", depth)+cause.Error())
		out = append(out, causeChain(cause, depth+1)...)
	}
	return out
}
