package runtimeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

// PythonBuildVars are the sysconfig values needed to build an extension
// module for a given interpreter.
type PythonBuildVars struct {
	IncludeDir string `json:"INCLUDEPY"`
	ExtSuffix  string `json:"EXT_SUFFIX"`
	CXX        string `json:"CXX"`
}

const pythonProbe = `import json, sysconfig
print(json.dumps({k: sysconfig.get_config_var(k) or "" for k in ("INCLUDEPY", "EXT_SUFFIX", "CXX")}))`

// ProbePython asks the interpreter for its build variables.
func ProbePython(ctx context.Context, python string) (PythonBuildVars, error) {
	out, err := exec.CommandContext(ctx, python, "-c", pythonProbe).Output()
	if err != nil {
		return PythonBuildVars{}, fmt.Errorf("%w: probe %s: %v", domain.ErrIntegration, python, err)
	}
	return ParsePythonBuildVars(out)
}

func ParsePythonBuildVars(out []byte) (PythonBuildVars, error) {
	var vars PythonBuildVars
	if err := json.Unmarshal(out, &vars); err != nil {
		return PythonBuildVars{}, fmt.Errorf("%w: parse python build vars: %v", domain.ErrIntegration, err)
	}
	vars.IncludeDir = strings.TrimSpace(vars.IncludeDir)
	vars.ExtSuffix = strings.TrimSpace(vars.ExtSuffix)
	vars.CXX = strings.TrimSpace(vars.CXX)
	if vars.IncludeDir == "" || vars.ExtSuffix == "" {
		return PythonBuildVars{}, fmt.Errorf("%w: python build vars missing INCLUDEPY or EXT_SUFFIX", domain.ErrIntegration)
	}
	return vars, nil
}
