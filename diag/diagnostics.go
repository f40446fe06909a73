// Package diag defines the diagnostics shared by every stage of the Cot
// compiler pipeline. A Diagnostic carries the source position of the problem
// so the driver can render `path:line:col: kind: message` lines.
package diag

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
)

// Kind classifies a diagnostic by the pipeline stage that produced it.
type Kind int

const (
	Lexical Kind = iota
	Syntax
	Semantic
	Lowering
	Internal
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical error"
	case Syntax:
		return "syntax error"
	case Semantic:
		return "semantic error"
	case Lowering:
		return "lowering error"
	case Internal:
		return "internal compiler error"
	}
	return "error"
}

// Diagnostic is a single reported problem with its source position.
// Line and Column are 1-based; a zero Line means "no position".
type Diagnostic struct {
	Path    string
	Line    int32
	Column  int
	Kind    Kind
	Message string
}

func (d Diagnostic) Error() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s: %s", d.Path, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Kind, d.Message)
}

// Bag collects diagnostics across pipeline stages. Downstream stages consult
// HasErrors to decide whether to run at all.
type Bag struct {
	Path        string
	diagnostics []Diagnostic
}

func NewBag(path string) *Bag {
	return &Bag{Path: path}
}

// Add records a diagnostic at the given position.
func (b *Bag) Add(kind Kind, line int32, column int, format string, args ...any) {
	b.diagnostics = append(b.diagnostics, Diagnostic{
		Path:    b.Path,
		Line:    line,
		Column:  column,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *Bag) HasErrors() bool {
	return len(b.diagnostics) > 0
}

func (b *Bag) Count() int {
	return len(b.diagnostics)
}

// All returns the recorded diagnostics sorted by source position.
func (b *Bag) All() []Diagnostic {
	out := make([]Diagnostic, len(b.diagnostics))
	copy(out, b.diagnostics)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

var (
	kindColor = color.New(color.FgRed, color.Bold)
	posColor  = color.New(color.Bold)
)

// Render writes every diagnostic to w, one per line, with the kind
// highlighted when w is a terminal.
func (b *Bag) Render(w io.Writer) {
	for _, d := range b.All() {
		if d.Line == 0 {
			fmt.Fprintf(w, "%s: %s: %s\n", d.Path, kindColor.Sprint(d.Kind), d.Message)
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n",
			posColor.Sprintf("%s:%d:%d:", d.Path, d.Line, d.Column),
			kindColor.Sprint(d.Kind),
			d.Message)
	}
}
