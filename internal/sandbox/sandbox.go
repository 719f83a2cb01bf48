// Package sandbox implements the safe-workdir argument rewrite rule: any
// string argument naming an existing file or directory on this host is
// rewritten into the configured safe work directory before an operator
// ever sees it.
package sandbox

import (
	"os"
	"path/filepath"
)

// RewriteArg rewrites value if it names an existing path: a directory
// resolves to the absolute safeWorkDir; a file resolves to
// safeWorkDir/basename. Strings that don't name an existing path pass
// through unchanged.
func RewriteArg(value, safeWorkDir string) string {
	info, err := os.Stat(value)
	if err != nil {
		return value
	}
	abs, err := filepath.Abs(safeWorkDir)
	if err != nil {
		abs = safeWorkDir
	}
	if info.IsDir() {
		return abs
	}
	return filepath.Join(abs, filepath.Base(value))
}

// RewriteArgs applies RewriteArg to every string value in args, leaving
// non-string values untouched.
func RewriteArgs(args map[string]any, safeWorkDir string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = RewriteArg(s, safeWorkDir)
			continue
		}
		out[k] = v
	}
	return out
}
