package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

// Output is one rendered report file.
type Output struct {
	Name string
	Data []byte
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "+", "plus", ":", "_")

// FileName turns a category into a file name component.
func FileName(category string) string {
	return fileNameReplacer.Replace(strings.TrimSpace(category))
}

// Render produces the report files of a run: <prefix>.all.calcs, then
// <prefix>.ags.calcs when group labels exist, then one <prefix>.<category>.tsv
// per wide table. Categories whose file names collide are an error.
func Render(g *Grouped, prefix string) ([]Output, error) {
	var outs []Output

	var buf bytes.Buffer
	if err := WriteCalcs(&buf, g, []string{prevalence.All}); err != nil {
		return nil, err
	}
	outs = append(outs, Output{Name: prefix + ".all.calcs", Data: append([]byte(nil), buf.Bytes()...)})

	if len(g.Groups) > 1 {
		buf.Reset()
		if err := WriteCalcs(&buf, g, g.Groups[1:]); err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: prefix + ".ags.calcs", Data: append([]byte(nil), buf.Bytes()...)})
	}

	seen := map[string]string{}
	for _, t := range Tables(g) {
		name := prefix + "." + FileName(t.Category) + ".tsv"
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("categories %q and %q both render to %s", prev, t.Category, name)
		}
		seen[name] = t.Category
		buf.Reset()
		if err := WriteTable(&buf, t); err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: name, Data: append([]byte(nil), buf.Bytes()...)})
	}
	return outs, nil
}
