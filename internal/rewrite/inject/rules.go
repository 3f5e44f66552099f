package inject

import "github.com/animus-labs/whlobf/internal/rewrite/patch"

var (
	// #define __PYX_MARK_ERR_POS(f_index, lineno) \
	//     { __pyx_filename = __pyx_f[f_index]; ... }
	markErrPosPattern = patch.MustCompile(RuleMarkErrPos, `(?m)(#define __PYX_MARK_ERR_POS.+?\\\s+\{.+?)\}`)

	fileScopeDeclPattern = patch.MustCompile(RuleFileScopeDecl, `(?m)^(static const char \*__pyx_filename;)`)

	localDeclPattern = patch.MustCompile(RuleLocalDecl, `(?m)^([ \t]+)(const char \*__pyx_filename = NULL;)`)

	addTracebackPattern = patch.MustCompile(RuleAddTraceback, `__Pyx_AddTraceback\("(.+?)"`)

	argtupleInvalidPattern = patch.MustCompile(RuleArgtupleInvalid, `__Pyx_RaiseArgtupleInvalid\("(.+?)"`)
)
