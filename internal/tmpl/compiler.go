// Package tmpl compiles marker templates into reusable render functions.
//
// A template is literal text interleaved with three kinds of markers:
//
//	<%= pipeline %>   escaped output
//	<%- pipeline %>   raw output
//	<% action %>      control (range, if, else, end, with, variables, calls)
//
// Compilation translates the markers into a text/template program. Literal
// chunks are emitted as quoted string constants, so backslashes, quotes,
// carriage returns and "{{" sequences in the source are reproduced verbatim.
package tmpl

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/conneroisu/clips/internal/errors"
)

const (
	openMarker  = "<%"
	closeMarker = "%>"
)

// IncludeFunc is invoked for every include call a template makes. The returned
// string is written to the output in place of the call.
type IncludeFunc func(name string, opts map[string]any) (string, error)

// Template is a compiled template. It is immutable and safe for concurrent use.
type Template struct {
	name    string
	program string
	tree    *template.Template
}

// Compile translates src into a Template. funcs are added on top of the
// built-in functions and take precedence over them.
func Compile(name, src string, funcs template.FuncMap) (*Template, error) {
	program, err := Translate(src)
	if err != nil {
		if ce, ok := err.(*errors.ClipError); ok {
			ce.WithContext("template", name)
		}
		return nil, err
	}

	tree, err := template.New(name).
		Option("missingkey=zero").
		Funcs(builtinFuncs(nil)).
		Funcs(funcs).
		Parse(program)
	if err != nil {
		return nil, errors.NewTemplateError(errors.CodeTemplateParse,
			fmt.Sprintf("unable to compile template %q", name), err).
			WithContext("template", name)
	}

	return &Template{name: name, program: program, tree: tree}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name, src string, funcs template.FuncMap) *Template {
	t, err := Compile(name, src, funcs)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Program returns the generated text/template source.
func (t *Template) Program() string { return t.program }

// Execute renders the template with data as dot. include receives the
// template's include calls; a nil include makes every include call fail.
func (t *Template) Execute(data any, include IncludeFunc) (string, error) {
	tree, err := t.tree.Clone()
	if err != nil {
		return "", errors.NewTemplateError(errors.CodeTemplateExec,
			fmt.Sprintf("unable to prepare template %q", t.name), err)
	}
	tree.Funcs(template.FuncMap{"include": includeFunc(include)})

	var buf bytes.Buffer
	if err := tree.Execute(&buf, data); err != nil {
		return "", errors.NewTemplateError(errors.CodeTemplateExec,
			fmt.Sprintf("unable to execute template %q", t.name), err).
			WithContext("template", t.name)
	}
	return buf.String(), nil
}

// Translate converts marker source into a text/template program.
func Translate(src string) (string, error) {
	var b strings.Builder
	offset := 0

	for {
		start := strings.Index(src[offset:], openMarker)
		if start < 0 {
			writeLiteral(&b, src[offset:])
			break
		}
		start += offset
		writeLiteral(&b, src[offset:start])

		end := strings.Index(src[start+len(openMarker):], closeMarker)
		if end < 0 {
			line := strings.Count(src[:start], "\n") + 1
			return "", errors.NewTemplateError(errors.CodeUnterminatedMarker,
				fmt.Sprintf("unterminated marker at line %d", line), nil).
				WithContext("line", line)
		}
		end += start + len(openMarker)

		body := src[start+len(openMarker) : end]
		offset = end + len(closeMarker)

		mark := byte(0)
		if len(body) > 0 && (body[0] == '=' || body[0] == '-') {
			mark = body[0]
			body = body[1:]
		}
		code := strings.TrimSpace(body)

		switch mark {
		case '=', '-':
			if code == "" {
				line := strings.Count(src[:start], "\n") + 1
				return "", errors.NewTemplateError(errors.CodeEmptyMarker,
					fmt.Sprintf("empty output marker at line %d", line), nil).
					WithContext("line", line)
			}
			fn := "escape"
			if mark == '-' {
				fn = "printRaw"
			}
			b.WriteString("{{")
			b.WriteString(fn)
			b.WriteString(" (")
			b.WriteString(code)
			b.WriteString(")}}")
		default:
			if code == "" {
				continue
			}
			b.WriteString("{{")
			b.WriteString(code)
			b.WriteString("}}")
		}
	}

	return b.String(), nil
}

func writeLiteral(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	b.WriteString("{{")
	b.WriteString(strconv.Quote(text))
	b.WriteString("}}")
}
