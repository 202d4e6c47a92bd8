// Package preview renders email templates locally with sample data so the
// admin UI can show a preview without a round trip to the template service.
// Templates use the Liquid language; placeholders with no sample value are
// rendered as "[name]" so editors can see what is still unbound.
package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// SampleData returns the default preview values.
func SampleData() map[string]any {
	return map[string]any{
		"firstName":      "Juan",
		"lastName":       "Pérez",
		"company":        "Empresa ABC",
		"month":          "Febrero",
		"actionUrl":      "#",
		"unsubscribeUrl": "#",
	}
}

// Input is a template to preview.
type Input struct {
	Subject     string   `json:"subject"`
	HTMLContent string   `json:"htmlContent"`
	TextContent string   `json:"textContent,omitempty"`
	Variables   []string `json:"variables,omitempty"`
}

// Result is a rendered preview.
type Result struct {
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
	TextContent string `json:"textContent,omitempty"`
	// Unbound lists variables rendered as "[name]".
	Unbound []string `json:"unbound,omitempty"`
}

// Renderer renders Liquid templates and caches parsed sources.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // source hash -> *liquid.Template
}

// NewRenderer creates a Renderer with the email filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ firstName | default: "amigo" }}
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	r.engine.RegisterFilter("email_domain", func(email string) string {
		if _, domain, ok := strings.Cut(email, "@"); ok {
			return domain
		}
		return ""
	})

	r.engine.RegisterFilter("mask_email", func(email string) string {
		local, domain, ok := strings.Cut(email, "@")
		if !ok {
			return email
		}
		if len(local) <= 2 {
			return local + "***@" + domain
		}
		return local[:2] + "***@" + domain
	})

	// {{ total | number_with_delimiter }} -> 15.680
	r.engine.RegisterFilter("number_with_delimiter", func(value interface{}) string {
		var n int64
		switch v := value.(type) {
		case int:
			n = int64(v)
		case int64:
			n = v
		case float64:
			n = int64(v)
		default:
			return fmt.Sprintf("%v", value)
		}
		return delimit(n, ".")
	})
}

func delimit(n int64, sep string) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Validate reports Liquid syntax errors in source.
func (r *Renderer) Validate(source string) error {
	_, err := r.parse(source)
	return err
}

// Render renders source with vars.
func (r *Renderer) Render(source string, vars map[string]any) (string, error) {
	if source == "" {
		return "", nil
	}
	tpl, err := r.parse(source)
	if err != nil {
		return "", err
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

func (r *Renderer) parse(source string) (*liquid.Template, error) {
	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	r.cache.Store(key, tpl)
	return tpl, nil
}

// Preview renders every part of in. Values in data override the sample
// data. Each declared or referenced top-level variable without a non-empty
// value renders as "[name]".
func (r *Renderer) Preview(in Input, data map[string]any) (*Result, error) {
	vars := SampleData()
	for k, v := range data {
		vars[k] = v
	}

	names := map[string]bool{}
	for _, v := range in.Variables {
		names[v] = true
	}
	for _, part := range []string{in.Subject, in.HTMLContent, in.TextContent} {
		for _, v := range ExtractVariables(part) {
			if !strings.Contains(v, ".") {
				names[v] = true
			}
		}
	}

	var unbound []string
	for name := range names {
		if isBlank(vars[name]) {
			vars[name] = "[" + name + "]"
			unbound = append(unbound, name)
		}
	}
	sort.Strings(unbound)

	res := &Result{Unbound: unbound}
	var err error
	if res.Subject, err = r.Render(in.Subject, vars); err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	if res.HTMLContent, err = r.Render(in.HTMLContent, vars); err != nil {
		return nil, fmt.Errorf("html: %w", err)
	}
	if res.TextContent, err = r.Render(in.TextContent, vars); err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}
	return res, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Matches {{ var }}, {{ var | filter }} and {{ var.nested }}.
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)\s*(?:\||\}\})`)

// ExtractVariables returns the variable names used in output tags of
// source, sorted and without duplicates.
func ExtractVariables(source string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range varPattern.FindAllStringSubmatch(source, -1) {
		name := m[1]
		root, _, _ := strings.Cut(name, ".")
		if seen[name] || liquidKeywords[root] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var liquidKeywords = map[string]bool{
	"forloop": true, "tablerowloop": true,
	"true": true, "false": true, "nil": true, "empty": true, "blank": true,
}
