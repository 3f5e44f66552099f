package runtimeexec

import "context"

// Transpiler turns a Python source file into a C++ translation unit.
type Transpiler interface {
	Kind() string
	Transpile(ctx context.Context, sourceFile, workDir string) (Unit, error)
}

// Compiler builds a translation unit into an importable extension module.
type Compiler interface {
	Kind() string
	Compile(ctx context.Context, req CompileRequest) (string, error)
}

// Unit is a generated translation unit plus the descriptor the compiler
// needs to build it.
type Unit struct {
	CppFile    string
	Descriptor Descriptor
}

type Descriptor struct {
	Module     string
	SourceFile string
	Language   string
}

type CompileRequest struct {
	Unit        Unit
	WorkDir     string
	IncludeDirs []string

	ObfuscatorActivated bool
	InjectorActivated   bool
}
