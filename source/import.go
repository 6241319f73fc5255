package source

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Import names a function defined in an external Starlark file.
type Import struct {
	File   string
	Symbol string
}

// Load reads the file with read, cuts the definition of Symbol out of
// it and compiles that text on its own.
func (imp Import) Load(read func(path string) ([]byte, error), env starlark.StringDict) (f *Func, err error) {
	buf, err := read(imp.File)
	if err != nil {
		return nil, errors.Wrapf(err, "import %s", imp.File)
	}
	text, err := Extract(imp.File, string(buf), imp.Symbol)
	if err != nil {
		return
	}
	return Compile(imp.Symbol, text, env)
}

// Extract returns the text of the top-level def named symbol.
// Annotation lines are blanked before parsing so that positions keep
// matching the original text.
func Extract(filename, text, symbol string) (out string, err error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if isAnnotation(line) {
			lines[i] = ""
		}
	}
	file, err := fileOptions.Parse(filename, strings.Join(lines, "\n"), 0)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", filename)
	}
	for _, stmt := range file.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || def.Name.Name != symbol {
			continue
		}
		start, end := def.Span()
		return Normalize(strings.Join(lines[start.Line-1:end.Line], "\n")), nil
	}
	return "", fmt.Errorf("%s: no function named %q", filename, symbol)
}
