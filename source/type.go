package source

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Attr is a class-level attribute of a Type.
type Attr struct {
	Name  string
	Value interface{}
}

// Type is a structured type descriptor.  It is stored as the Starlark
// text produced by Render: a constructor function named like the
// type whose body binds every attribute, nested type and method and
// returns them as a struct.
type Type struct {
	Name    string
	Attrs   []Attr
	Types   []*Type
	Methods []*Func
}

const indent = "    "

// Render returns the declarative source text for t.
func (t *Type) Render() (src string, err error) {
	var b strings.Builder
	err = t.render(&b, 0)
	if err != nil {
		return
	}
	return b.String(), nil
}

func (t *Type) render(b *strings.Builder, depth int) (err error) {
	outer := strings.Repeat(indent, depth)
	inner := outer + indent
	fmt.Fprintf(b, "%sdef %s():\n", outer, t.Name)
	var members []string
	for _, attr := range t.Attrs {
		lit, err := literal(attr.Value)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", t.Name, attr.Name)
		}
		fmt.Fprintf(b, "%s%s = %s\n", inner, attr.Name, lit)
		members = append(members, attr.Name)
	}
	for _, nested := range t.Types {
		b.WriteString("\n")
		err = nested.render(b, depth+1)
		if err != nil {
			return
		}
		members = append(members, nested.Name)
	}
	for _, method := range t.Methods {
		src, err := method.Source()
		if err != nil {
			return errors.Wrapf(err, "%s.%s", t.Name, method.CallableName())
		}
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimSuffix(Normalize(src), "\n"), "\n") {
			if line == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString(inner + line + "\n")
		}
		members = append(members, method.CallableName())
	}
	if len(t.Types)+len(t.Methods) > 0 {
		b.WriteString("\n")
	}
	var fields []string
	for _, m := range members {
		fields = append(fields, m+" = "+m)
	}
	fmt.Fprintf(b, "%sreturn struct(%s)\n", inner, strings.Join(fields, ", "))
	return
}

func literal(v interface{}) (string, error) {
	sv, err := ToStarlark(v)
	if err != nil {
		return "", err
	}
	return sv.String(), nil
}
