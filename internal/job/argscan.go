package job

import (
	"path/filepath"
	"strings"
)

// sourceExts lists the argument suffixes dcc_scan_args treats as a
// compiler's source file when no explicit -o is present.
var sourceExts = map[string]bool{
	".c": true, ".i": true, ".cc": true, ".cpp": true, ".cxx": true,
	".C": true, ".ii": true, ".s": true, ".S": true, ".m": true, ".mm": true,
}

// scanObjectPath walks argv the way dcc_scan_args does: an explicit "-o
// FILE" (or "-oFILE") wins outright; otherwise the output name is derived
// from the last source-file argument with its extension replaced by ".o".
// It returns "" when neither form of argv gives it anything to go on.
func scanObjectPath(argv []string) string {
	for i := 1; i < len(argv); i++ {
		arg := argv[i]
		if arg == "-o" {
			if i+1 < len(argv) {
				return argv[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-o") && len(arg) > 2 {
			return arg[2:]
		}
	}
	for i := len(argv) - 1; i >= 1; i-- {
		base := filepath.Base(argv[i])
		ext := filepath.Ext(base)
		if sourceExts[ext] {
			return strings.TrimSuffix(base, ext) + ".o"
		}
	}
	return ""
}

// scanDepsPath derives the dependency-file name a -MD/-MMD compile would
// have produced: an explicit "-MF FILE" wins, otherwise it's objectRel with
// its extension replaced by ".d", matching gcc/clang's default naming.
func scanDepsPath(argv []string, objectRel string) string {
	for i := 1; i < len(argv); i++ {
		if argv[i] == "-MF" && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	if objectRel == "" {
		return ""
	}
	return strings.TrimSuffix(objectRel, filepath.Ext(objectRel)) + ".d"
}
