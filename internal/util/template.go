package util

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// templateFuncs are the helpers available inside instruction templates.
var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": titleCase,
	"join":  joinAny,
}

// RenderTemplate executes text as a Go text/template against session state.
// Text without template markers is returned as is. Parsed templates are
// cached by their text: agents re-render the same instruction on every turn,
// so each distinct template is parsed once per process.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parsedTemplate(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, state); err != nil {
		return "", err
	}

	return sb.String(), nil
}

var (
	templateMu    sync.RWMutex
	templateCache = map[string]*template.Template{}
)

func parsedTemplate(text string) (*template.Template, error) {
	templateMu.RLock()
	tmpl, ok := templateCache[text]
	templateMu.RUnlock()

	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New("instruction").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, err
	}

	templateMu.Lock()
	templateCache[text] = tmpl
	templateMu.Unlock()

	return tmpl, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func joinAny(sep string, items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	return strings.Join(parts, sep)
}
