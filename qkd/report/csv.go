package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/alan-christopher/qkdsim/qkd"
)

// A CSVWriter writes one comma separated line per result, preceded by a header
// line naming the Columns.
type CSVWriter struct {
	w           io.Writer
	tmpl        *template.Template
	wroteHeader bool
}

var lineTemplate = template.Must(template.New("line").Funcs(template.FuncMap{
	"optional": optional,
}).Parse(lineTmpl()))

// NewCSVWriter returns a CSVWriter writing to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w, tmpl: lineTemplate}
}

func (c *CSVWriter) Write(res qkd.Result) error {
	if !c.wroteHeader {
		if _, err := fmt.Fprintln(c.w, header()); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	return c.tmpl.Execute(c.w, NewRow(res))
}

func (c *CSVWriter) Close() error {
	return nil
}

func header() string {
	return strings.Join(Columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range Columns {
		if nullable[c] {
			els = append(els, "{{optional ."+c+"}}")
			continue
		}
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}
