package tmpl

import (
	"fmt"
	"reflect"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Slot is the placeholder written for every include call.
const Slot = "<clip-slot></clip-slot>"

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape converts v to text and escapes & < > " and '. nil yields "".
func Escape(v any) string {
	return htmlReplacer.Replace(Stringify(v))
}

// Stringify converts v to its text form. nil yields "".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

func builtinFuncs(include IncludeFunc) template.FuncMap {
	return template.FuncMap{
		"escape": Escape,
		"print": func(args ...any) string {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(Escape(a))
			}
			return b.String()
		},
		"printRaw": func(args ...any) string {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(Stringify(a))
			}
			return b.String()
		},
		"include": includeFunc(include),
		"dict":    Dict,
		// Casers hold state, so each call gets its own.
		"title": func(v any) string { return cases.Title(language.Und).String(Stringify(v)) },
		"upper": func(v any) string { return cases.Upper(language.Und).String(Stringify(v)) },
		"lower": func(v any) string { return cases.Lower(language.Und).String(Stringify(v)) },
	}
}

// includeFunc adapts an IncludeFunc to the template call form
// include "name" [options map | key value ...].
func includeFunc(include IncludeFunc) func(name string, args ...any) (string, error) {
	return func(name string, args ...any) (string, error) {
		if include == nil {
			return "", fmt.Errorf("include %q: includes are not available here", name)
		}
		opts, err := includeOptions(args)
		if err != nil {
			return "", fmt.Errorf("include %q: %w", name, err)
		}
		return include(name, opts)
	}
}

func includeOptions(args []any) (map[string]any, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		switch m := args[0].(type) {
		case nil:
			return nil, nil
		case map[string]any:
			return m, nil
		case map[string]string:
			out := make(map[string]any, len(m))
			for k, v := range m {
				out[k] = v
			}
			return out, nil
		default:
			rv := reflect.ValueOf(args[0])
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil, fmt.Errorf("options must be a map, got %T", args[0])
			}
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
			return out, nil
		}
	default:
		return Dict(args...)
	}
}

// Dict builds a map from alternating keys and values.
func Dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict expects an even number of arguments, got %d", len(kv))
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %d is %T, not string", i/2, kv[i])
		}
		m[key] = kv[i+1]
	}
	return m, nil
}
