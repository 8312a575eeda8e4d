// Package template renders campaign email bodies with the Liquid template
// language and mirrors the delivery provider's template catalog locally.
package template

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Engine renders Liquid templates with caching. Missing variables render as
// empty strings, which is what production sends need: a recipient with no
// first name gets "Olá ," never "Olá {{nome}},".
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine creates an Engine with the CRM's custom filters registered.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

// registerFilters adds domain-specific Liquid filters
func (e *Engine) registerFilters() {
	// Default value filter: {{ nome | default: "cliente" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// First name only: {{ nome | first_name }}
	e.engine.RegisterFilter("first_name", func(s string) string {
		parts := strings.Fields(s)
		if len(parts) == 0 {
			return s
		}
		return parts[0]
	})

	// Brazilian currency: {{ valor_total_gasto | brl }}
	e.engine.RegisterFilter("brl", func(value interface{}) string {
		var f float64
		switch n := value.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		default:
			return fmt.Sprintf("%v", value)
		}
		return strings.Replace(fmt.Sprintf("R$ %.2f", f), ".", ",", 1)
	})

	// HTML escape (safety): {{ user_input | escape }}
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Mask email for privacy: {{ email | mask_email }}
	e.engine.RegisterFilter("mask_email", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) != 2 {
			return email
		}
		local := parts[0]
		if len(local) <= 2 {
			return local + "***@" + parts[1]
		}
		return local[:2] + "***@" + parts[1]
	})
}

// Parse compiles a template string and returns any syntax errors
func (e *Engine) Parse(src string) error {
	_, err := e.engine.ParseString(src)
	return err
}

// Render processes a template with the given variables. cacheKey caches the
// parsed template across sends of the same campaign; pass "" to skip
// caching. On parse or render errors the original source is returned so the
// caller can decide whether a raw body is acceptable.
func (e *Engine) Render(cacheKey, src string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}

	tpl, err := e.engine.ParseString(src)
	if err != nil {
		return src, fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return src, fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// ClearCacheKey drops one cached template, used after a campaign body edit.
func (e *Engine) ClearCacheKey(key string) {
	e.cache.Delete(key)
}

var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExtractVariables lists the variable names referenced in a template,
// deduplicated, in first-appearance order.
func ExtractVariables(src string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range variablePattern.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// MissingVariables reports which referenced variables have no value, for
// preview-time validation. Production renders stay lax.
func MissingVariables(src string, vars map[string]interface{}) []string {
	var missing []string
	for _, name := range ExtractVariables(src) {
		if v, ok := vars[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
