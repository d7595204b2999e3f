package restfile

import "strings"

type LineRange struct {
	Start int
	End   int
}

// Header is a single name/value pair. Requests keep headers as an ordered
// slice so duplicate names survive a parse/serialize round trip instead of
// being merged the way http.Header would.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type AuthSpec struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

type Request struct {
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	Headers     []Header  `json:"headers,omitempty"`
	Body        string    `json:"body,omitempty"`
	Auth        *AuthSpec `json:"auth,omitempty"`
	LineRange   LineRange `json:"-"`
}

func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func (r *Request) Title() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.TrimSpace(strings.ToUpper(r.Method) + " " + r.URL)
}

// FileVariables are @name = value declarations at file scope.
// Keys are unique; a later declaration overwrites an earlier one.
type FileVariables map[string]string

type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string {
	return e.Message
}

type Document struct {
	Path      string
	Variables FileVariables
	Requests  []*Request
	Errors    []ParseError
	Raw       []byte
}

type Collection struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables,omitempty"`
	Requests  []*Request        `json:"requests"`
}

type EnvVariable struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
	Secret  bool   `json:"secret,omitempty"`
}

type Environment struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Variables []EnvVariable `json:"variables"`
}

// EnabledValues flattens the environment into a lookup map. Only enabled
// entries participate; on duplicate names the first entry wins.
func (e *Environment) EnabledValues() map[string]string {
	if e == nil {
		return nil
	}
	values := make(map[string]string, len(e.Variables))
	for _, v := range e.Variables {
		if !v.Enabled {
			continue
		}
		if _, ok := values[v.Name]; ok {
			continue
		}
		values[v.Name] = v.Value
	}
	return values
}

func (e *Environment) Lookup(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, v := range e.Variables {
		if v.Enabled && v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}
