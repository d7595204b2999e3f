package vars

import (
	"os"
	"regexp"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/chain"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/util"
)

type Provider interface {
	Resolve(name string) (string, bool)
	Label() string
}

// Context carries every input a resolution may consult. The active
// environment is passed in explicitly rather than read from shared state,
// so resolving is a pure function of its inputs.
type Context struct {
	Collection  map[string]string
	Environment *restfile.Environment
	DotEnv      map[string]string
	Responses   chain.Store
	LookupEnv   func(string) (string, bool)
}

type Resolver struct {
	providers []Provider
	dotenv    Provider
	responses chain.Store
	lookupEnv func(string) (string, bool)
}

// NewResolver layers the context tiers in precedence order:
// collection, then enabled environment entries, then dotenv values.
// Dynamic names are computed only when no tier shadows them.
func NewResolver(ctx Context) *Resolver {
	dotenv := NewMapProvider("dotenv", ctx.DotEnv)
	r := &Resolver{
		providers: []Provider{
			NewMapProvider("collection", ctx.Collection),
			NewMapProvider("environment", ctx.Environment.EnabledValues()),
			dotenv,
		},
		dotenv:    dotenv,
		responses: ctx.Responses,
		lookupEnv: ctx.LookupEnv,
	}
	if r.lookupEnv == nil {
		r.lookupEnv = lookupOSEnv
	}
	return r
}

var chainRefPattern = regexp.MustCompile(
	`^([A-Za-z0-9_-]+)\.response\.([A-Za-z]+)(?:\.(.+))?$`,
)

// Expand substitutes every recognised placeholder in input and returns the
// result together with the names that stayed unresolved. Unresolved
// placeholders pass through byte-for-byte.
func (r *Resolver) Expand(input string) (string, []string) {
	var unresolved []string
	result := templateVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := templateVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		name := strings.TrimSpace(sub[1])
		if name == "" {
			return match
		}
		value, ok := r.resolveToken(name)
		if !ok {
			unresolved = append(unresolved, name)
			return match
		}
		return value
	})
	return result, util.DedupeNonEmptyStrings(unresolved)
}

// Unresolved reports which placeholder names would stay unresolved without
// mutating anything. Dynamic values are probed but the results discarded.
func (r *Resolver) Unresolved(input string) []string {
	var unresolved []string
	for _, match := range templateVarPattern.FindAllStringSubmatch(input, -1) {
		if len(match) < 2 {
			continue
		}
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		if _, ok := r.resolveToken(name); !ok {
			unresolved = append(unresolved, name)
		}
	}
	return util.DedupeNonEmptyStrings(unresolved)
}

func (r *Resolver) resolveToken(name string) (string, bool) {
	if rest, ok := strings.CutPrefix(name, "$dotenv "); ok {
		return r.dotenv.Resolve(strings.TrimSpace(rest))
	}
	if rest, ok := strings.CutPrefix(name, "$env:"); ok {
		return r.lookupEnv(strings.TrimSpace(rest))
	}
	if strings.HasPrefix(name, "$") {
		if value, ok := r.lookupProviders(name); ok {
			return value, true
		}
		return resolveDynamic(name)
	}
	if sub := chainRefPattern.FindStringSubmatch(name); sub != nil {
		return r.resolveChain(sub[1], sub[2], sub[3])
	}
	return r.lookupProviders(name)
}

func (r *Resolver) lookupProviders(name string) (string, bool) {
	for _, provider := range r.providers {
		if value, ok := provider.Resolve(name); ok {
			return value, true
		}
	}
	return "", false
}

func (r *Resolver) resolveChain(request, section, path string) (string, bool) {
	if r.responses == nil {
		return "", false
	}
	resp, ok := r.responses.Response(request)
	if !ok {
		return "", false
	}
	return resp.Select(section, path)
}

type MapProvider struct {
	values map[string]string
	label  string
}

// Keys get lowercased so lookups are case-insensitive.
func NewMapProvider(label string, values map[string]string) Provider {
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[strings.ToLower(k)] = v
	}
	return &MapProvider{values: normalized, label: label}
}

func (p *MapProvider) Resolve(name string) (string, bool) {
	value, ok := p.values[strings.ToLower(name)]
	return value, ok
}

func (p *MapProvider) Label() string {
	return p.label
}

func lookupOSEnv(name string) (string, bool) {
	if value, ok := os.LookupEnv(name); ok {
		return value, true
	}
	return os.LookupEnv(strings.ToUpper(name))
}
