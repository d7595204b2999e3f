package vars

import (
	"regexp"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/util"
)

// templateVarPattern is non-greedy: a placeholder ends at the first "}}",
// so nested braces are not supported.
var templateVarPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// IsDynamicName reports whether a placeholder names a dynamic value
// ($timestamp, $guid, ...) rather than a stored variable.
func IsDynamicName(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), "$")
}

// IsChainName reports whether a placeholder references a previous response
// (request.response.body style). Any dotted name is treated as a chain
// reference, never as a plain variable.
func IsChainName(name string) bool {
	return strings.Contains(strings.TrimSpace(name), ".")
}

// ExtractNames scans the given texts for {{...}} placeholders and returns
// the plain variable names in first-seen order. Dynamic names and chain
// references are excluded, as are whitespace-only placeholders.
func ExtractNames(texts ...string) []string {
	var names []string
	for _, text := range texts {
		for _, match := range templateVarPattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 2 {
				continue
			}
			name := strings.TrimSpace(match[1])
			if name == "" || IsDynamicName(name) || IsChainName(name) {
				continue
			}
			names = append(names, name)
		}
	}
	return util.DedupeNonEmptyStrings(names)
}

// ReplacePlaceholders rewrites each {{...}} token through fn, which
// receives the trimmed inner name. Returning false keeps the token verbatim.
func ReplacePlaceholders(text string, fn func(name string) (string, bool)) string {
	return templateVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := templateVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if out, ok := fn(strings.TrimSpace(sub[1])); ok {
			return out
		}
		return match
	})
}

// ExtractRequestNames aggregates variable usage across every text field of
// a request: URL, header names and values, body and auth parameters.
func ExtractRequestNames(req *restfile.Request) []string {
	if req == nil {
		return nil
	}
	texts := make([]string, 0, 2+2*len(req.Headers))
	texts = append(texts, req.URL)
	for _, h := range req.Headers {
		texts = append(texts, h.Name, h.Value)
	}
	texts = append(texts, req.Body)
	if req.Auth != nil {
		for _, value := range req.Auth.Params {
			texts = append(texts, value)
		}
	}
	return ExtractNames(texts...)
}
