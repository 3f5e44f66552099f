package domain

import "errors"

// Error taxonomy shared by every stage. Stage code wraps these with
// fmt.Errorf("%w: ...") and callers match them with errors.Is.
var (
	// ErrValidation reports a bad input file (missing, wrong extension).
	ErrValidation = errors.New("validation_error")
	// ErrIntegration reports a collaborator that produced an unexpected
	// artifact count or shape.
	ErrIntegration = errors.New("integration_error")
	// ErrPatchNotFound reports a rewrite anchor missing from the translation
	// unit. Injectors normally return it as activated=false instead.
	ErrPatchNotFound = errors.New("patch_not_found")
	// ErrConfiguration reports invalid configuration, such as key material.
	ErrConfiguration = errors.New("configuration_error")
	// ErrCompileTimeout reports a native compile that exceeded its deadline.
	ErrCompileTimeout = errors.New("compile_timeout")
	// ErrCompile reports a native compile that exited non-zero.
	ErrCompile = errors.New("compile_error")
)
